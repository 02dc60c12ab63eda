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
	"math"
	"reflect"
	"unsafe"

	"github.com/cockroachdb/flatcoll/storage"
)

// HashFunc hashes a key to a 32-bit value. Tables mask off the sign bit, so
// any value, including math.MinInt32, is acceptable.
type HashFunc[K storage.Element] func(key K) int32

// defaultHash returns a hash function derived from the bit pattern of K.
// 64-bit keys fold their upper half into the lower one, floats hash positive
// and negative zero identically since they compare equal.
func defaultHash[K storage.Element]() HashFunc[K] {
	switch reflect.TypeFor[K]().Kind() {
	case reflect.Bool:
		return func(key K) int32 {
			if *(*bool)(unsafe.Pointer(&key)) {
				return 1231
			}
			return 1237
		}
	case reflect.Float32:
		return func(key K) int32 {
			f := *(*float32)(unsafe.Pointer(&key))
			if f == 0 {
				return 0
			}
			return int32(math.Float32bits(f))
		}
	case reflect.Float64:
		return func(key K) int32 {
			f := *(*float64)(unsafe.Pointer(&key))
			if f == 0 {
				return 0
			}
			return fold(math.Float64bits(f))
		}
	}

	var k K
	switch unsafe.Sizeof(k) {
	case 1:
		return func(key K) int32 {
			return int32(*(*int8)(unsafe.Pointer(&key)))
		}
	case 2:
		return func(key K) int32 {
			return int32(*(*int16)(unsafe.Pointer(&key)))
		}
	case 4:
		return func(key K) int32 {
			return *(*int32)(unsafe.Pointer(&key))
		}
	default:
		return func(key K) int32 {
			return fold(*(*uint64)(unsafe.Pointer(&key)))
		}
	}
}

func fold(v uint64) int32 {
	return int32(uint32(v ^ v>>32))
}
