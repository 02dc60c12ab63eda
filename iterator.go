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

// TableIterator visits the occupied slots of a HashTable in ascending slot
// order. The table must not be modified during iteration except through
// Remove; any other modification stops the iteration and is reported by Err.
//
//	it := t.Iterator()
//	for it.Next() {
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type TableIterator[K, V storage.Element] struct {
	t     *HashTable[K, V]
	index int
	pos   int
	mods  uint64
	err   error
}

// Iterator returns an iterator positioned before the first key of the table.
func (t *HashTable[K, V]) Iterator() *TableIterator[K, V] {
	return &TableIterator[K, V]{t: t, index: -1, mods: t.mods}
}

// Next advances to the next key and reports whether there is one.
func (it *TableIterator[K, V]) Next() bool {
	if it.err != nil {
		return false
	}
	if it.mods != it.t.mods {
		it.err = ErrConcurrentModification
		it.index = -1
		return false
	}
	it.index = it.t.slots.nextOccupied(it.pos)
	if it.index < 0 {
		it.pos = it.t.capacity
		return false
	}
	it.pos = it.index + 1
	return true
}

// Index returns the slot of the current key.
func (it *TableIterator[K, V]) Index() int {
	return it.index
}

// Key returns the current key.
func (it *TableIterator[K, V]) Key() K {
	return it.t.keys.Get(it.index)
}

// Value returns the value paired with the current key, or the zero value if
// the table stores no values.
func (it *TableIterator[K, V]) Value() V {
	if !it.t.values.enabled() {
		var v V
		return v
	}
	return it.t.values.arr.Get(it.index)
}

// Remove removes the current key from the table. Iteration continues with
// the following key.
func (it *TableIterator[K, V]) Remove() error {
	if it.err != nil {
		return it.err
	}
	if it.index < 0 {
		return ErrMissingElement
	}
	if it.mods != it.t.mods {
		it.err = ErrConcurrentModification
		return it.err
	}
	it.t.removeAt(it.index)
	it.t.checkInvariants()
	it.index = -1
	it.mods = it.t.mods
	return nil
}

// Err returns ErrConcurrentModification if the table was modified other than
// through the iterator.
func (it *TableIterator[K, V]) Err() error {
	return it.err
}

// TreeIterator visits the nodes of a Tree in key order.
type TreeIterator[K, V storage.Element] struct {
	t       *Tree[K, V]
	cur     int32
	next    int32
	started bool
	mods    uint64
	err     error
}

// Ascend returns an iterator positioned before the smallest key of the tree.
func (t *Tree[K, V]) Ascend() *TreeIterator[K, V] {
	return &TreeIterator[K, V]{t: t, cur: NoIndex, next: NoIndex, mods: t.mods}
}

// Next advances to the next node in key order and reports whether there is
// one.
func (it *TreeIterator[K, V]) Next() bool {
	if it.err != nil {
		return false
	}
	if it.mods != it.t.mods {
		it.err = ErrConcurrentModification
		it.cur = NoIndex
		return false
	}
	if !it.started {
		it.started = true
		it.next = it.t.leftmost(it.t.root)
	}
	it.cur = it.next
	if it.cur == NoIndex {
		return false
	}
	it.next = it.t.successor(it.cur)
	return true
}

// Index returns the arena index of the current node.
func (it *TreeIterator[K, V]) Index() int {
	return int(it.cur)
}

// Key returns the key of the current node.
func (it *TreeIterator[K, V]) Key() K {
	return it.t.keyOf(it.cur)
}

// Value returns the value of the current node, or the zero value if the tree
// stores no values.
func (it *TreeIterator[K, V]) Value() V {
	if !it.t.values.enabled() {
		var v V
		return v
	}
	return it.t.values.arr.Get(int(it.cur))
}

// Remove removes the current node. Iteration continues with its successor.
func (it *TreeIterator[K, V]) Remove() error {
	if it.err != nil {
		return it.err
	}
	if it.cur == NoIndex {
		return ErrMissingElement
	}
	if it.mods != it.t.mods {
		it.err = ErrConcurrentModification
		return it.err
	}
	// Rotations preserve key order, so the successor stays the successor.
	// Only its index can change, if it was the node moved into the hole.
	if moved := it.t.removeAt(it.cur); moved != NoIndex && it.next == moved {
		it.next = it.cur
	}
	it.cur = NoIndex
	it.mods = it.t.mods
	return nil
}

// Err returns ErrConcurrentModification if the tree was modified other than
// through the iterator.
func (it *TreeIterator[K, V]) Err() error {
	return it.err
}

// TreeScanner visits the nodes of a Tree in arena order, which is cheaper
// than key order and unrelated to it.
type TreeScanner[K, V storage.Element] struct {
	t    *Tree[K, V]
	cur  int32
	pos  int32
	mods uint64
	err  error
}

// Scan returns a scanner positioned before the node at index 0.
func (t *Tree[K, V]) Scan() *TreeScanner[K, V] {
	return &TreeScanner[K, V]{t: t, cur: NoIndex, mods: t.mods}
}

// Next advances to the next node in arena order and reports whether there is
// one.
func (s *TreeScanner[K, V]) Next() bool {
	if s.err != nil {
		return false
	}
	if s.mods != s.t.mods {
		s.err = ErrConcurrentModification
		s.cur = NoIndex
		return false
	}
	if int(s.pos) >= s.t.size {
		s.cur = NoIndex
		return false
	}
	s.cur = s.pos
	s.pos++
	return true
}

// Index returns the arena index of the current node.
func (s *TreeScanner[K, V]) Index() int {
	return int(s.cur)
}

// Key returns the key of the current node.
func (s *TreeScanner[K, V]) Key() K {
	return s.t.keyOf(s.cur)
}

// Value returns the value of the current node, or the zero value if the tree
// stores no values.
func (s *TreeScanner[K, V]) Value() V {
	if !s.t.values.enabled() {
		var v V
		return v
	}
	return s.t.values.arr.Get(int(s.cur))
}

// Remove removes the current node. The node moved in from the end of the
// arena, if any, is visited next.
func (s *TreeScanner[K, V]) Remove() error {
	if s.err != nil {
		return s.err
	}
	if s.cur == NoIndex {
		return ErrMissingElement
	}
	if s.mods != s.t.mods {
		s.err = ErrConcurrentModification
		return s.err
	}
	if moved := s.t.removeAt(s.cur); moved != NoIndex {
		s.pos = s.cur
	}
	s.cur = NoIndex
	s.mods = s.t.mods
	return nil
}

// Err returns ErrConcurrentModification if the tree was modified other than
// through the scanner.
func (s *TreeScanner[K, V]) Err() error {
	return s.err
}
