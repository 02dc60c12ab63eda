// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flatcoll

import (
	"iter"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
)

// signBit returns the bit that must be flipped to map a key of an integer type
// with the given width onto an unsigned index that sorts the same way, or 0 if
// the type is unsigned.
func signBit[K ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32]() uint32 {
	var zero K
	if zero-1 > zero {
		return 0
	}
	return 1 << (8*unsafe.Sizeof(zero) - 1)
}

// SmallSet is a set over a key type with at most 65536 distinct values,
// represented as one bit per possible key. Iteration is in ascending key
// order.
type SmallSet[K ~int8 | ~uint8 | ~int16 | ~uint16] struct {
	bits *bitset.BitSet
	mask uint32
	sign uint32
}

// NewSmallSet constructs an empty set covering the whole domain of K.
func NewSmallSet[K ~int8 | ~uint8 | ~int16 | ~uint16]() *SmallSet[K] {
	var zero K
	domain := uint32(1) << (8 * unsafe.Sizeof(zero))
	return &SmallSet[K]{
		bits: bitset.New(uint(domain)),
		mask: domain - 1,
		sign: signBit[K](),
	}
}

func (s *SmallSet[K]) index(k K) uint {
	return uint((uint32(uint16(k)) & s.mask) ^ s.sign)
}

func (s *SmallSet[K]) key(i uint) K {
	return K(uint32(i) ^ s.sign)
}

// Add adds k to the set and reports whether it was absent.
func (s *SmallSet[K]) Add(k K) bool {
	i := s.index(k)
	if s.bits.Test(i) {
		return false
	}
	s.bits.Set(i)
	return true
}

// Contains reports whether k is in the set.
func (s *SmallSet[K]) Contains(k K) bool {
	return s.bits.Test(s.index(k))
}

// Remove removes k from the set and reports whether it was present.
func (s *SmallSet[K]) Remove(k K) bool {
	i := s.index(k)
	if !s.bits.Test(i) {
		return false
	}
	s.bits.Clear(i)
	return true
}

// Len returns the number of keys in the set.
func (s *SmallSet[K]) Len() int {
	return int(s.bits.Count())
}

// Clear removes every key.
func (s *SmallSet[K]) Clear() {
	s.bits.ClearAll()
}

// All returns an iterator over the keys of the set in ascending order.
func (s *SmallSet[K]) All() iter.Seq[K] {
	return func(yield func(K) bool) {
		for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
			if !yield(s.key(i)) {
				return
			}
		}
	}
}

// BitmapSet is a set of 32-bit keys held in a compressed bitmap. It suits
// large sets of keys clustered in dense ranges. Iteration is in ascending key
// order.
type BitmapSet[K ~int32 | ~uint32] struct {
	rb   *roaring.Bitmap
	sign uint32
}

// NewBitmapSet constructs an empty set.
func NewBitmapSet[K ~int32 | ~uint32]() *BitmapSet[K] {
	return &BitmapSet[K]{
		rb:   roaring.New(),
		sign: signBit[K](),
	}
}

func (s *BitmapSet[K]) index(k K) uint32 {
	return uint32(k) ^ s.sign
}

// Add adds k to the set and reports whether it was absent.
func (s *BitmapSet[K]) Add(k K) bool {
	return s.rb.CheckedAdd(s.index(k))
}

// Contains reports whether k is in the set.
func (s *BitmapSet[K]) Contains(k K) bool {
	return s.rb.Contains(s.index(k))
}

// Remove removes k from the set and reports whether it was present.
func (s *BitmapSet[K]) Remove(k K) bool {
	return s.rb.CheckedRemove(s.index(k))
}

// Len returns the number of keys in the set.
func (s *BitmapSet[K]) Len() int {
	return int(s.rb.GetCardinality())
}

// Clear removes every key.
func (s *BitmapSet[K]) Clear() {
	s.rb.Clear()
}

// All returns an iterator over the keys of the set in ascending order.
func (s *BitmapSet[K]) All() iter.Seq[K] {
	return func(yield func(K) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(K(it.Next() ^ s.sign)) {
				return
			}
		}
	}
}
