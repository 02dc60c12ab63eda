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

// Package storage implements the flat storage substrate underneath every
// container in flatcoll: a fixed-capacity array of fixed-width, pointer-free
// elements addressed by integer index.
//
// An Array either lives on the Go heap (Heap) or in an anonymous memory
// mapping outside of it (Native). Native arrays add no work for the garbage
// collector regardless of their size, at the price of having to be closed
// explicitly. The strategy never changes what an Array stores or returns.
//
// Arrays are not resized in place. Resized returns a new Array holding the
// overlapping prefix of the old one; the caller decides when the old Array is
// closed.
package storage

import (
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/cockroachdb/flatcoll/internal/mmap"
)

// ErrOutOfBounds is returned when a length or index falls outside the range an
// Array (or a capacity computed for one) can address.
var ErrOutOfBounds = errors.New("out of bounds")

// Element is the set of types an Array can hold. All of them are fixed width
// and free of pointers, which is what makes Native placement legal.
type Element interface {
	~bool | ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 |
		~uint64 | ~int | ~uint | ~uintptr | ~float32 | ~float64
}

// Strategy selects where the memory of an Array is allocated.
type Strategy uint8

const (
	// Heap allocates with make and lets the garbage collector reclaim memory.
	Heap Strategy = iota
	// Native allocates an anonymous mapping outside of the Go heap. Native
	// arrays must be closed to release their memory.
	Native
)

func (s Strategy) String() string {
	switch s {
	case Heap:
		return "heap"
	case Native:
		return "native"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// Array is a fixed-length sequence of elements of type T.
type Array[T Element] struct {
	data     []T
	strategy Strategy
	mapping  *mmap.Mapping
}

// New allocates an Array of n zeroed elements using the given strategy.
func New[T Element](n int, strategy Strategy) (*Array[T], error) {
	if n < 0 || n > MaxLen[T]() {
		return nil, fmt.Errorf("%w: length %d not in [0, %d]", ErrOutOfBounds, n, MaxLen[T]())
	}
	switch strategy {
	case Heap:
		return &Array[T]{data: make([]T, n), strategy: Heap}, nil
	case Native:
		m, err := mmap.MapAnon(n * elemSize[T]())
		if err != nil {
			return nil, fmt.Errorf("storage: mapping %d elements: %w", n, err)
		}
		a := &Array[T]{strategy: Native, mapping: m}
		if n > 0 {
			a.data = unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(m.Bytes()))), n)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("storage: unknown strategy %s", strategy)
	}
}

func elemSize[T Element]() int {
	var t T
	return int(unsafe.Sizeof(t))
}

// MaxLen returns the largest length of an Array[T]: the address space divided
// by the width of T.
func MaxLen[T Element]() int {
	return math.MaxInt / elemSize[T]()
}

// Len returns the number of elements in the array.
func (a *Array[T]) Len() int {
	return len(a.data)
}

// MaxLen returns the largest length the array could be resized to.
func (a *Array[T]) MaxLen() int {
	return MaxLen[T]()
}

// Strategy returns the allocation strategy of the array.
func (a *Array[T]) Strategy() Strategy {
	return a.strategy
}

// Get returns the element at index i. The result is undefined (the call
// panics) if i is outside [0, Len()).
func (a *Array[T]) Get(i int) T {
	return a.data[i]
}

// Set stores v at index i.
func (a *Array[T]) Set(i int, v T) {
	a.data[i] = v
}

// Fill stores v at every index.
func (a *Array[T]) Fill(v T) {
	for i := range a.data {
		a.data[i] = v
	}
}

// Clear zeroes every element.
func (a *Array[T]) Clear() {
	clear(a.data)
}

// Resized returns a new array of Len()+delta elements with the same strategy.
// The overlapping prefix is copied and any extension is zeroed. The receiver
// is left untouched. An error wrapping ErrOutOfBounds is returned if the new
// length would be negative or exceed MaxLen.
func (a *Array[T]) Resized(delta int) (*Array[T], error) {
	n := a.Len()
	if delta < -n || delta > a.MaxLen()-n {
		return nil, fmt.Errorf("%w: resize of %d elements by %d", ErrOutOfBounds, n, delta)
	}
	b, err := New[T](n+delta, a.strategy)
	if err != nil {
		return nil, err
	}
	copy(b.data, a.data)
	return b, nil
}

// Close releases the memory of a Native array. It is idempotent and a no-op
// for Heap arrays. An Array must not be used after Close.
func (a *Array[T]) Close() error {
	if a == nil {
		return nil
	}
	a.data = nil
	if a.mapping != nil {
		m := a.mapping
		a.mapping = nil
		return m.Close()
	}
	return nil
}
