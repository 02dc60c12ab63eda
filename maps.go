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

	"github.com/cockroachdb/flatcoll/storage"
)

// HashSet is a set of keys backed by a HashTable.
type HashSet[K storage.Element] struct {
	t *HashTable[K, bool]
}

// NewHashSet constructs a set able to hold initialCapacity keys without
// growing. WithValues is ignored.
func NewHashSet[K storage.Element](initialCapacity int, options ...Option[K]) (*HashSet[K], error) {
	t, err := NewHashTable[K, bool](initialCapacity, append(options[:len(options):len(options)], noValues[K]{})...)
	if err != nil {
		return nil, err
	}
	return &HashSet[K]{t: t}, nil
}

type noValues[K storage.Element] struct{}

func (noValues[K]) apply(c *config[K]) {
	c.values = false
}

// Add adds key to the set and reports whether it was absent.
func (s *HashSet[K]) Add(key K) (bool, error) {
	i, err := s.t.Insert(key)
	return err == nil && i >= 0, err
}

// Contains reports whether key is in the set.
func (s *HashSet[K]) Contains(key K) bool {
	return s.t.Contains(key)
}

// Remove removes key from the set and reports whether it was present.
func (s *HashSet[K]) Remove(key K) bool {
	return s.t.Remove(key) >= 0
}

// Len returns the number of keys in the set.
func (s *HashSet[K]) Len() int {
	return s.t.Len()
}

// Clear removes every key.
func (s *HashSet[K]) Clear() {
	s.t.Clear()
}

// All returns an iterator over the keys of the set in unspecified order.
func (s *HashSet[K]) All() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range s.t.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Close releases the storage of the set.
func (s *HashSet[K]) Close() error {
	return s.t.Close()
}

// HashMap is a map backed by a HashTable.
type HashMap[K, V storage.Element] struct {
	t *HashTable[K, V]
}

// NewHashMap constructs a map able to hold initialCapacity entries without
// growing.
func NewHashMap[K, V storage.Element](initialCapacity int, options ...Option[K]) (*HashMap[K, V], error) {
	t, err := NewHashTable[K, V](initialCapacity, append(options[:len(options):len(options)], WithValues[K]())...)
	if err != nil {
		return nil, err
	}
	return &HashMap[K, V]{t: t}, nil
}

// Put associates v with key, replacing any previous value.
func (m *HashMap[K, V]) Put(key K, v V) error {
	i, err := m.t.Insert(key)
	if err != nil {
		return err
	}
	if i < 0 {
		i = -i - 1
	}
	m.t.values.arr.Set(i, v)
	return nil
}

// Get returns the value associated with key and whether it was present.
func (m *HashMap[K, V]) Get(key K) (V, bool) {
	if i := m.t.Index(key); i >= 0 {
		return m.t.values.arr.Get(i), true
	}
	var v V
	return v, false
}

// Contains reports whether key is present.
func (m *HashMap[K, V]) Contains(key K) bool {
	return m.t.Contains(key)
}

// Remove removes key and reports whether it was present.
func (m *HashMap[K, V]) Remove(key K) bool {
	return m.t.Remove(key) >= 0
}

// ContainsValue reports whether any key is associated with v.
func (m *HashMap[K, V]) ContainsValue(v V) bool {
	return m.t.ContainsValue(v)
}

// Keys returns the keys of the map. Keys()[i] is associated with Values()[i].
func (m *HashMap[K, V]) Keys() []K {
	return m.t.Keys()
}

// Values returns the values of the map.
func (m *HashMap[K, V]) Values() []V {
	return m.t.Values()
}

// Len returns the number of entries in the map.
func (m *HashMap[K, V]) Len() int {
	return m.t.Len()
}

// Clear removes every entry.
func (m *HashMap[K, V]) Clear() {
	m.t.Clear()
}

// All returns an iterator over the entries of the map in unspecified order.
func (m *HashMap[K, V]) All() iter.Seq2[K, V] {
	return m.t.All()
}

// Close releases the storage of the map.
func (m *HashMap[K, V]) Close() error {
	return m.t.Close()
}

// TreeSet is a sorted set of keys backed by a Tree.
type TreeSet[K storage.Element] struct {
	t *Tree[K, bool]
}

// NewTreeSet constructs a set ordered by the natural order of K.
func NewTreeSet[K Ordered](initialCapacity int, options ...Option[K]) (*TreeSet[K], error) {
	t, err := NewTree[K, bool](initialCapacity, uniqueKeys(options)...)
	if err != nil {
		return nil, err
	}
	return &TreeSet[K]{t: t}, nil
}

// NewTreeSetFunc constructs a set ordered by compare.
func NewTreeSetFunc[K storage.Element](
	initialCapacity int, compare Comparator[K], options ...Option[K],
) (*TreeSet[K], error) {
	t, err := NewTreeFunc[K, bool](initialCapacity, compare, uniqueKeys(options)...)
	if err != nil {
		return nil, err
	}
	return &TreeSet[K]{t: t}, nil
}

// uniqueKeys overrides the options of a tree backing a set or map: keys are
// unique, and values are stored only by maps which add WithValues after it.
func uniqueKeys[K storage.Element](options []Option[K]) []Option[K] {
	return append(options[:len(options):len(options)], WithDuplicates[K](false), noValues[K]{})
}

// Add adds key to the set and reports whether it was absent.
func (s *TreeSet[K]) Add(key K) (bool, error) {
	i, err := s.t.Insert(key)
	return err == nil && i != NoIndex, err
}

// Contains reports whether key is in the set.
func (s *TreeSet[K]) Contains(key K) bool {
	return s.t.Contains(key)
}

// Remove removes key from the set and reports whether it was present.
func (s *TreeSet[K]) Remove(key K) bool {
	return s.t.Remove(key) != NoIndex
}

// Min returns the smallest key of the set, or false if the set is empty.
func (s *TreeSet[K]) Min() (K, bool) {
	return s.t.keyAt(s.t.Min())
}

// Max returns the largest key of the set, or false if the set is empty.
func (s *TreeSet[K]) Max() (K, bool) {
	return s.t.keyAt(s.t.Max())
}

// Len returns the number of keys in the set.
func (s *TreeSet[K]) Len() int {
	return s.t.Len()
}

// Clear removes every key.
func (s *TreeSet[K]) Clear() {
	s.t.Clear()
}

// All returns an iterator over the keys of the set in ascending order.
func (s *TreeSet[K]) All() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range s.t.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Close releases the storage of the set.
func (s *TreeSet[K]) Close() error {
	return s.t.Close()
}

// TreeMap is a sorted map backed by a Tree.
type TreeMap[K, V storage.Element] struct {
	t *Tree[K, V]
}

// NewTreeMap constructs a map ordered by the natural order of K.
func NewTreeMap[K Ordered, V storage.Element](initialCapacity int, options ...Option[K]) (*TreeMap[K, V], error) {
	t, err := NewTree[K, V](initialCapacity, append(uniqueKeys(options), WithValues[K]())...)
	if err != nil {
		return nil, err
	}
	return &TreeMap[K, V]{t: t}, nil
}

// NewTreeMapFunc constructs a map ordered by compare.
func NewTreeMapFunc[K, V storage.Element](
	initialCapacity int, compare Comparator[K], options ...Option[K],
) (*TreeMap[K, V], error) {
	t, err := NewTreeFunc[K, V](initialCapacity, compare, append(uniqueKeys(options), WithValues[K]())...)
	if err != nil {
		return nil, err
	}
	return &TreeMap[K, V]{t: t}, nil
}

// Put associates v with key, replacing any previous value.
func (m *TreeMap[K, V]) Put(key K, v V) error {
	i := m.t.Index(key)
	if i == NoIndex {
		var err error
		if i, err = m.t.Insert(key); err != nil {
			return err
		}
	}
	m.t.values.arr.Set(i, v)
	return nil
}

// Get returns the value associated with key and whether it was present.
func (m *TreeMap[K, V]) Get(key K) (V, bool) {
	if i := m.t.Index(key); i != NoIndex {
		return m.t.values.arr.Get(i), true
	}
	var v V
	return v, false
}

// Contains reports whether key is present.
func (m *TreeMap[K, V]) Contains(key K) bool {
	return m.t.Contains(key)
}

// Remove removes key and reports whether it was present.
func (m *TreeMap[K, V]) Remove(key K) bool {
	return m.t.Remove(key) != NoIndex
}

// Min returns the entry with the smallest key, or false if the map is empty.
func (m *TreeMap[K, V]) Min() (K, V, bool) {
	return m.entryAt(m.t.Min())
}

// Max returns the entry with the largest key, or false if the map is empty.
func (m *TreeMap[K, V]) Max() (K, V, bool) {
	return m.entryAt(m.t.Max())
}

func (m *TreeMap[K, V]) entryAt(i int) (K, V, bool) {
	var v V
	k, ok := m.t.keyAt(i)
	if ok {
		v = m.t.values.arr.Get(i)
	}
	return k, v, ok
}

// ContainsValue reports whether any key is associated with v.
func (m *TreeMap[K, V]) ContainsValue(v V) bool {
	return m.t.ContainsValue(v)
}

// Keys returns the keys of the map in ascending order.
func (m *TreeMap[K, V]) Keys() []K {
	return m.t.Keys()
}

// Values returns the values of the map in ascending order of their keys.
func (m *TreeMap[K, V]) Values() []V {
	return m.t.Values()
}

// Len returns the number of entries in the map.
func (m *TreeMap[K, V]) Len() int {
	return m.t.Len()
}

// Clear removes every entry.
func (m *TreeMap[K, V]) Clear() {
	m.t.Clear()
}

// All returns an iterator over the entries of the map in ascending key order.
func (m *TreeMap[K, V]) All() iter.Seq2[K, V] {
	return m.t.All()
}

// Close releases the storage of the map.
func (m *TreeMap[K, V]) Close() error {
	return m.t.Close()
}
