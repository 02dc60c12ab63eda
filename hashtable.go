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

// Package flatcoll provides collections of primitive keys and values that
// live in flat, explicitly addressed memory rather than in individually
// allocated nodes. Every container is built on storage.Array, which places
// its elements either on the Go heap or in an off-heap anonymous mapping.
//
// # Hash tables
//
// HashTable is an open-addressing table using double hashing. The capacity
// is always a prime taken from a curated table (see internal/primes). For a
// key with hash h (sign bit cleared) the probe sequence starts at the primary
// slot h%capacity and repeatedly steps backwards by 1+h%(capacity-2). Since
// the capacity is prime and the step lies in [1, capacity-2], the step is
// coprime to the capacity and the sequence visits every slot before
// repeating, which is why capacities must stay prime.
//
// Each slot is free, occupied or a tombstone. A search stops at the first
// free slot. Removal leaves a tombstone so that probe sequences passing
// through the slot stay intact; inserts reuse the first tombstone they pass
// before reaching a free slot. Tombstones are reclaimed by rehashing, which
// happens in place when the table is crowded with tombstones and by growing
// to the next prime past twice the capacity when the load factor would be
// exceeded. A table always keeps at least one free slot, so every probe
// terminates.
//
// # Trees
//
// Tree is a height-balanced binary search tree whose nodes live in parallel
// arrays (keys, left, right, parent, height) indexed by int32. The arena is
// dense: the live nodes are exactly the indices [0, Len()), so Len() is also
// the index of the next node to be allocated. Removal rotates the doomed node
// down until it is a leaf, detaches it, and then moves the node stored at the
// last index into the hole. The rotations avoid the successor search of
// classic BST deletion, and since the node being removed is a leaf when it is
// detached, only the moved node's links need repointing.
//
// # Concurrency
//
// Nothing in this package is goroutine-safe. Iterators fail fast: any
// structural change not made through the iterator itself is reported as
// ErrConcurrentModification by the iterator's next step.
package flatcoll

import (
	"fmt"
	"iter"
	"log/slog"
	"math"
	"strings"

	"github.com/cockroachdb/flatcoll/internal/primes"
	"github.com/cockroachdb/flatcoll/storage"
)

// HashTable is an open-addressing hash table of keys of type K, optionally
// paired with values of type V (see WithValues). Slot indices returned by its
// methods stay valid until the next rehash.
//
// A HashTable is NOT goroutine-safe.
type HashTable[K, V storage.Element] struct {
	hash       HashFunc[K]
	loadFactor float64
	strategy   storage.Strategy
	logger     *slog.Logger

	keys   *storage.Array[K]
	values valueColumn[V]
	slots  slots
	// The number of slots (always a prime from the primes table).
	capacity int
	// The number of occupied slots.
	size int
	// The number of free slots, maintained incrementally. Tombstones count as
	// neither occupied nor free.
	free int
	// The largest size permitted at the current capacity:
	// min(floor(capacity*loadFactor), capacity-1).
	growthLimit int
	// Incremented on every structural change. Iterators compare against it.
	mods uint64
	// Set when the storage was supplied with values.
	withValues bool
}

// NewHashTable constructs a table able to hold initialCapacity keys without
// growing. The effective capacity is the smallest curated prime that is at
// least initialCapacity/loadFactor.
func NewHashTable[K, V storage.Element](
	initialCapacity int, options ...Option[K],
) (*HashTable[K, V], error) {
	c := makeConfig(options)
	if !(c.loadFactor > 0 && c.loadFactor < 1) {
		return nil, fmt.Errorf("%w: load factor %v not in (0, 1)", ErrInvalidArgument, c.loadFactor)
	}
	if initialCapacity < 0 {
		return nil, fmt.Errorf("%w: negative capacity %d", ErrInvalidArgument, initialCapacity)
	}
	t := &HashTable[K, V]{
		hash:       c.hash,
		loadFactor: c.loadFactor,
		strategy:   c.strategy,
		logger:     c.logger,
		withValues: c.values,
	}
	capacity, err := t.capacityFor(initialCapacity)
	if err != nil {
		return nil, err
	}
	if err := t.reset(capacity); err != nil {
		return nil, err
	}
	t.checkInvariants()
	return t, nil
}

// capacityFor returns the prime capacity needed to hold n keys.
func (t *HashTable[K, V]) capacityFor(n int) (int, error) {
	want := math.Ceil(float64(n) / t.loadFactor)
	if want > primes.Largest {
		return 0, fmt.Errorf("%w: %d keys at load factor %v", ErrOutOfBounds, n, t.loadFactor)
	}
	c, err := primes.Next(int(want))
	if err != nil {
		return 0, err
	}
	for t.limit(c) < n {
		if c, err = primes.Next(c + 1); err != nil {
			return 0, err
		}
	}
	return c, nil
}

func (t *HashTable[K, V]) limit(capacity int) int {
	return min(int(float64(capacity)*t.loadFactor), capacity-1)
}

// reset replaces the storage of the table with fresh, all-free storage of the
// given capacity. The old storage is neither copied nor released. On error
// the table is unchanged.
func (t *HashTable[K, V]) reset(capacity int) error {
	keys, err := storage.New[K](capacity, t.strategy)
	if err != nil {
		return err
	}
	var values *storage.Array[V]
	if t.withValues {
		if values, err = storage.New[V](capacity, t.strategy); err != nil {
			_ = keys.Close()
			return err
		}
	}
	s, err := makeSlots(capacity, t.strategy)
	if err != nil {
		_ = keys.Close()
		_ = values.Close()
		return err
	}

	t.keys = keys
	t.values = valueColumn[V]{values}
	t.slots = s
	t.capacity = capacity
	t.size = 0
	t.free = capacity
	t.growthLimit = t.limit(capacity)
	return nil
}

// Close releases the storage of the table. It is unnecessary to close a table
// using heap storage. It is invalid to use a table after it has been closed,
// though Close itself is idempotent.
func (t *HashTable[K, V]) Close() error {
	var err error
	if t.keys != nil {
		err = t.keys.Close()
		if verr := t.values.arr.Close(); err == nil {
			err = verr
		}
		if serr := t.slots.close(); err == nil {
			err = serr
		}
	}
	t.keys = nil
	t.values = valueColumn[V]{}
	t.capacity, t.size, t.free, t.growthLimit = 0, 0, 0, 0
	return err
}

// hashOf returns the hash of key with the sign bit cleared so that the
// modulo arithmetic of probing never goes negative.
func (t *HashTable[K, V]) hashOf(key K) int {
	return int(t.hash(key) & 0x7fffffff)
}

// step returns the slot preceding i by probe positions, wrapping around.
func (t *HashTable[K, V]) step(i, probe int) int {
	i -= probe
	if i < 0 {
		i += t.capacity
	}
	return i
}

// Index returns the slot holding key, or -1 if the key is not present.
func (t *HashTable[K, V]) Index(key K) int {
	h := t.hashOf(key)
	primary := h % t.capacity
	switch t.slots.at(primary) {
	case slotFree:
		return -1
	case slotOccupied:
		if t.keys.Get(primary) == key {
			return primary
		}
	}

	probe := 1 + h%(t.capacity-2)
	for i := t.step(primary, probe); i != primary; i = t.step(i, probe) {
		switch t.slots.at(i) {
		case slotFree:
			return -1
		case slotOccupied:
			if t.keys.Get(i) == key {
				return i
			}
		}
	}
	return -1
}

// Contains reports whether key is present.
func (t *HashTable[K, V]) Contains(key K) bool {
	return t.Index(key) >= 0
}

// insertionIndex walks the probe sequence of key. If the key is present it
// returns its slot and found=true. Otherwise it returns the slot the key
// should be stored in: the first tombstone passed before reaching a free
// slot, else the free slot itself. If the whole cycle holds neither a free
// slot nor a tombstone an error wrapping ErrInvariantViolation is returned.
func (t *HashTable[K, V]) insertionIndex(key K) (index int, found bool, err error) {
	h := t.hashOf(key)
	primary := h % t.capacity
	tombstone := -1
	switch t.slots.at(primary) {
	case slotFree:
		return primary, false, nil
	case slotOccupied:
		if t.keys.Get(primary) == key {
			return primary, true, nil
		}
	case slotTombstone:
		tombstone = primary
	}

	probe := 1 + h%(t.capacity-2)
	for i := t.step(primary, probe); i != primary; i = t.step(i, probe) {
		switch t.slots.at(i) {
		case slotFree:
			if tombstone >= 0 {
				return tombstone, false, nil
			}
			return i, false, nil
		case slotOccupied:
			if t.keys.Get(i) == key {
				return i, true, nil
			}
		case slotTombstone:
			if tombstone < 0 {
				tombstone = i
			}
		}
	}

	// Every slot was probed without reaching a free one. A tombstone is still
	// usable; without one the table is saturated, which the growth limit and
	// the free slot reserve are supposed to prevent.
	if tombstone >= 0 {
		return tombstone, false, nil
	}
	return -1, false, fmt.Errorf("%w: no free or tombstoned slot among %d (size=%d)",
		ErrInvariantViolation, t.capacity, t.size)
}

// Insert adds key to the table and returns its slot. If the key is already
// present nothing changes and -(index+1) is returned, where index is the slot
// holding the key. Insert rehashes first if adding the key would exceed the
// load factor (growing the table) or consume the last free slot (rehashing at
// the same capacity to reclaim tombstones).
func (t *HashTable[K, V]) Insert(key K) (int, error) {
	i, found, err := t.insertionIndex(key)
	if found {
		return -i - 1, nil
	}
	if err != nil || t.size >= t.growthLimit || (t.slots.at(i) == slotFree && t.free < 2) {
		if err := t.makeRoom(); err != nil {
			return 0, err
		}
		if i, _, err = t.insertionIndex(key); err != nil {
			return 0, err
		}
	}
	t.insertAt(i, key)
	t.checkInvariants()
	return i, nil
}

// insertAt stores key in the free or tombstoned slot i.
func (t *HashTable[K, V]) insertAt(i int, key K) {
	if t.slots.at(i) == slotFree {
		t.free--
	}
	t.slots.set(i, slotOccupied)
	t.keys.Set(i, key)
	t.size++
	t.mods++
}

// makeRoom grows the table if it is at its growth limit and otherwise
// rehashes it in place to turn tombstones back into free slots. Growth goes to
// the next prime past twice the capacity, or further if that prime cannot hold
// one more key at the load factor.
func (t *HashTable[K, V]) makeRoom() error {
	if t.size >= t.growthLimit {
		doubled, err := primes.Next(2 * t.capacity)
		if err != nil {
			return err
		}
		needed, err := t.capacityFor(t.size + 1)
		if err != nil {
			return err
		}
		return t.rehash(max(doubled, needed))
	}
	return t.rehash(t.capacity)
}

// Remove removes key from the table and returns the slot it occupied, or -1
// if it was not present. The slot becomes a tombstone. A value paired with
// the key is left in place; it is unreachable but not cleared.
func (t *HashTable[K, V]) Remove(key K) int {
	i := t.Index(key)
	if i < 0 {
		return -1
	}
	t.removeAt(i)
	t.checkInvariants()
	return i
}

// RemoveAt removes the key stored in slot i. It returns an error wrapping
// ErrMissingElement if the slot is not occupied.
func (t *HashTable[K, V]) RemoveAt(i int) error {
	if err := t.checkOccupied(i); err != nil {
		return err
	}
	t.removeAt(i)
	t.checkInvariants()
	return nil
}

func (t *HashTable[K, V]) removeAt(i int) {
	t.slots.set(i, slotTombstone)
	t.size--
	t.mods++
}

// Clear removes every key, keeping the capacity.
func (t *HashTable[K, V]) Clear() {
	t.slots.reset()
	t.size = 0
	t.free = t.capacity
	t.mods++
	t.checkInvariants()
}

// Rehash moves the contents of the table into fresh storage whose capacity
// is the smallest curated prime >= capacity, dropping every tombstone. The
// new capacity must be able to hold the current keys at the configured load
// factor.
func (t *HashTable[K, V]) Rehash(capacity int) error {
	c, err := primes.Next(capacity)
	if err != nil {
		return err
	}
	if t.limit(c) < t.size {
		return fmt.Errorf("%w: capacity %d cannot hold %d keys at load factor %v",
			ErrInvalidArgument, c, t.size, t.loadFactor)
	}
	return t.rehash(c)
}

// Compact rehashes the table at its current capacity, reclaiming tombstones.
func (t *HashTable[K, V]) Compact() error {
	return t.rehash(t.capacity)
}

// ShrinkToLoadFactor rehashes the table into the smallest capacity that holds
// its keys at the configured load factor.
func (t *HashTable[K, V]) ShrinkToLoadFactor() error {
	c, err := primes.Next(int(math.Round(float64(t.size) / t.loadFactor)))
	if err != nil {
		return err
	}
	for t.limit(c) < t.size {
		if c, err = primes.Next(c + 1); err != nil {
			return err
		}
	}
	return t.rehash(c)
}

// EnsureCapacity grows the table, if necessary, so that it can hold n keys
// without another rehash.
func (t *HashTable[K, V]) EnsureCapacity(n int) error {
	if n <= t.growthLimit {
		return nil
	}
	c, err := t.capacityFor(n)
	if err != nil {
		return err
	}
	return t.rehash(c)
}

// rehash re-inserts every occupied key, along with its value, into fresh
// storage of exactly the given capacity and releases the old storage.
func (t *HashTable[K, V]) rehash(capacity int) error {
	oldKeys, oldValues, oldSlots := t.keys, t.values, t.slots
	oldCapacity, oldSize, oldFree := t.capacity, t.size, t.free

	if err := t.reset(capacity); err != nil {
		return err
	}
	for i := 0; i < oldCapacity; i++ {
		if !oldSlots.occupied(i) {
			continue
		}
		key := oldKeys.Get(i)
		j, _, err := t.insertionIndex(key)
		if err != nil {
			// Unreachable: the new storage has room for every old key.
			panic(err)
		}
		t.insertAt(j, key)
		if t.values.enabled() {
			t.values.arr.Set(j, oldValues.arr.Get(i))
		}
	}
	t.mods++

	_ = oldKeys.Close()
	_ = oldValues.arr.Close()
	_ = oldSlots.close()

	t.logger.Debug("hash table rehashed",
		slog.Int("from", oldCapacity),
		slog.Int("to", capacity),
		slog.Int("size", oldSize),
		slog.Int("tombstones", oldCapacity-oldSize-oldFree))
	t.checkInvariants()
	return nil
}

// Len returns the number of keys in the table.
func (t *HashTable[K, V]) Len() int {
	return t.size
}

// Capacity returns the number of slots in the table.
func (t *HashTable[K, V]) Capacity() int {
	return t.capacity
}

// LoadFactor returns the configured load factor.
func (t *HashTable[K, V]) LoadFactor() float64 {
	return t.loadFactor
}

// Modifications returns a counter that changes on every structural change.
func (t *HashTable[K, V]) Modifications() uint64 {
	return t.mods
}

func (t *HashTable[K, V]) checkOccupied(i int) error {
	if i < 0 || i >= t.capacity {
		return fmt.Errorf("%w: slot %d not in [0, %d)", ErrOutOfBounds, i, t.capacity)
	}
	if !t.slots.occupied(i) {
		return fmt.Errorf("%w: slot %d is %s", ErrMissingElement, i, t.slots.at(i))
	}
	return nil
}

// KeyAt returns the key stored in slot i.
func (t *HashTable[K, V]) KeyAt(i int) (K, error) {
	if err := t.checkOccupied(i); err != nil {
		var k K
		return k, err
	}
	return t.keys.Get(i), nil
}

// ValueAt returns the value stored in slot i.
func (t *HashTable[K, V]) ValueAt(i int) (V, error) {
	var v V
	if !t.values.enabled() {
		return v, fmt.Errorf("%w: table stores no values", ErrInvalidArgument)
	}
	if err := t.checkOccupied(i); err != nil {
		return v, err
	}
	return t.values.arr.Get(i), nil
}

// SetValueAt stores v as the value of the key in slot i.
func (t *HashTable[K, V]) SetValueAt(i int, v V) error {
	if !t.values.enabled() {
		return fmt.Errorf("%w: table stores no values", ErrInvalidArgument)
	}
	if err := t.checkOccupied(i); err != nil {
		return err
	}
	t.values.arr.Set(i, v)
	return nil
}

// ContainsValue reports whether any live key is paired with v. It scans
// every slot.
func (t *HashTable[K, V]) ContainsValue(v V) bool {
	return t.values.contains(v, t.capacity, t.slots.occupied)
}

// Keys returns the keys of the table in slot order.
func (t *HashTable[K, V]) Keys() []K {
	r := make([]K, 0, t.size)
	for i := t.slots.nextOccupied(0); i >= 0; i = t.slots.nextOccupied(i + 1) {
		r = append(r, t.keys.Get(i))
	}
	return r
}

// Values returns the values of the table in slot order, so that Values()[i]
// pairs with Keys()[i]. It returns nil if the table stores no values.
func (t *HashTable[K, V]) Values() []V {
	return t.values.snapshot(t.capacity, t.size, t.slots.occupied)
}

// All returns an iterator over the keys and values of the table in slot
// order. Values are zero if the table stores none. The iterator panics with
// ErrConcurrentModification if the table is modified during iteration.
func (t *HashTable[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		it := t.Iterator()
		for it.Next() {
			if !yield(it.Key(), it.Value()) {
				return
			}
		}
		if err := it.Err(); err != nil {
			panic(err)
		}
	}
}

func (t *HashTable[K, V]) checkInvariants() {
	if invariants {
		if p, err := primes.Next(t.capacity); err != nil || p != t.capacity {
			panic(fmt.Sprintf("invariant failed: capacity %d is not a table prime\n%s", t.capacity, t.debugString()))
		}
		if t.size > t.growthLimit {
			panic(fmt.Sprintf("invariant failed: size %d exceeds growth limit %d\n%s", t.size, t.growthLimit, t.debugString()))
		}

		var used, free int
		for i := 0; i < t.capacity; i++ {
			switch t.slots.at(i) {
			case slotFree:
				free++
			case slotOccupied:
				// NaN keys are stored but never found.
				if k := t.keys.Get(i); k == k && t.Index(k) != i {
					panic(fmt.Sprintf("invariant failed: slot(%d): %v found at %d\n%s",
						i, k, t.Index(k), t.debugString()))
				}
				used++
			case slotTombstone:
			default:
				panic(fmt.Sprintf("invariant failed: slot(%d): unknown state %d", i, t.slots.at(i)))
			}
		}
		if used != t.size {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but size is %d\n%s",
				used, t.size, t.debugString()))
		}
		if free != t.free {
			panic(fmt.Sprintf("invariant failed: found %d free slots, but free count is %d\n%s",
				free, t.free, t.debugString()))
		}
		if free == 0 {
			panic(fmt.Sprintf("invariant failed: no free slot\n%s", t.debugString()))
		}
	}
}

func (t *HashTable[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  size=%d  free=%d  growth-limit=%d\n",
		t.capacity, t.size, t.free, t.growthLimit)
	for i := 0; i < t.capacity; i++ {
		switch s := t.slots.at(i); s {
		case slotOccupied:
			fmt.Fprintf(&buf, "  %4d: %v [h=%08x]\n", i, t.keys.Get(i), t.hashOf(t.keys.Get(i)))
		default:
			fmt.Fprintf(&buf, "  %4d: %s\n", i, s)
		}
	}
	return buf.String()
}
