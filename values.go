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

import "github.com/cockroachdb/flatcoll/storage"

// valueColumn is the value side of a map: storage indexed exactly like the
// key storage of its owner. Only the owner knows which indices are live, so
// every scan takes a liveness predicate; entries at dead indices are stale
// and must never be reported.
type valueColumn[V storage.Element] struct {
	arr *storage.Array[V]
}

func (c valueColumn[V]) enabled() bool {
	return c.arr != nil
}

// contains reports whether v is stored at a live index in [0, n).
func (c valueColumn[V]) contains(v V, n int, live func(i int) bool) bool {
	if c.arr == nil {
		return false
	}
	for i := 0; i < n; i++ {
		if live(i) && c.arr.Get(i) == v {
			return true
		}
	}
	return false
}

// snapshot copies the values at live indices in [0, n) in index order.
func (c valueColumn[V]) snapshot(n, sizeHint int, live func(i int) bool) []V {
	if c.arr == nil {
		return nil
	}
	r := make([]V, 0, sizeHint)
	for i := 0; i < n; i++ {
		if live(i) {
			r = append(r, c.arr.Get(i))
		}
	}
	return r
}
