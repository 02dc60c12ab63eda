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
	"cmp"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"strings"

	"github.com/cockroachdb/flatcoll/storage"
)

// NoIndex marks the absence of a node: an empty child or parent link, an
// empty tree's root, or a key that was not found or not inserted.
const NoIndex = -1

const minArenaGrowth = 8

// Comparator is a total order over keys. It returns a negative value if
// a < b, zero if a == b and a positive value if a > b. Keys that compare
// equal are treated as equal regardless of their bits.
type Comparator[K any] func(a, b K) int

// Ordered is the set of element types with a natural order.
type Ordered interface {
	storage.Element
	cmp.Ordered
}

// Tree is a height-balanced binary search tree whose nodes are stored in an
// arena of parallel arrays and linked by int32 indices. The live nodes always
// occupy exactly the indices [0, Len()). Node indices stay valid until the
// next removal, which may move the node stored at the last index.
//
// A Tree is NOT goroutine-safe.
type Tree[K, V storage.Element] struct {
	compare    Comparator[K]
	duplicates bool
	tolerance  int
	strategy   storage.Strategy
	logger     *slog.Logger
	withValues bool

	keys   *storage.Array[K]
	values valueColumn[V]
	left   *storage.Array[int32]
	right  *storage.Array[int32]
	parent *storage.Array[int32]
	// heights caches the height of the subtree rooted at each node. A leaf
	// has height 0 and an empty subtree -1.
	heights *storage.Array[int32]

	root int32
	size int
	mods uint64
}

// NewTree constructs a tree ordered by the natural order of K.
func NewTree[K Ordered, V storage.Element](
	initialCapacity int, options ...Option[K],
) (*Tree[K, V], error) {
	return NewTreeFunc[K, V](initialCapacity, cmp.Compare[K], options...)
}

// NewTreeFunc constructs a tree ordered by compare, with room for
// initialCapacity nodes before the arena grows.
func NewTreeFunc[K, V storage.Element](
	initialCapacity int, compare Comparator[K], options ...Option[K],
) (*Tree[K, V], error) {
	if compare == nil {
		return nil, fmt.Errorf("%w: nil comparator", ErrInvalidArgument)
	}
	if initialCapacity < 0 || initialCapacity > math.MaxInt32 {
		return nil, fmt.Errorf("%w: capacity %d not in [0, %d]", ErrOutOfBounds, initialCapacity, math.MaxInt32)
	}
	c := makeConfig(options)
	t := &Tree[K, V]{
		compare:    compare,
		duplicates: c.duplicates,
		tolerance:  c.tolerance,
		strategy:   c.strategy,
		logger:     c.logger,
		withValues: c.values,
		root:       NoIndex,
	}
	if err := t.allocate(initialCapacity); err != nil {
		return nil, err
	}
	return t, nil
}

// allocate creates empty arena storage of the given capacity.
func (t *Tree[K, V]) allocate(capacity int) error {
	var made []io.Closer
	fail := func(err error) error {
		for _, c := range made {
			_ = c.Close()
		}
		return err
	}
	keys, err := storage.New[K](capacity, t.strategy)
	if err != nil {
		return fail(err)
	}
	made = append(made, keys)
	var values *storage.Array[V]
	if t.withValues {
		if values, err = storage.New[V](capacity, t.strategy); err != nil {
			return fail(err)
		}
		made = append(made, values)
	}
	links := make([]*storage.Array[int32], 4)
	for i := range links {
		if links[i], err = storage.New[int32](capacity, t.strategy); err != nil {
			return fail(err)
		}
		made = append(made, links[i])
	}
	t.keys, t.values = keys, valueColumn[V]{values}
	t.left, t.right, t.parent, t.heights = links[0], links[1], links[2], links[3]
	return nil
}

// resize moves the arena into storage of the given capacity, which must be
// at least Len(). The parallel arrays are replaced together or not at all.
func (t *Tree[K, V]) resize(capacity int) error {
	delta := capacity - t.keys.Len()
	var made []io.Closer
	fail := func(err error) error {
		for _, c := range made {
			_ = c.Close()
		}
		return err
	}
	keys, err := t.keys.Resized(delta)
	if err != nil {
		return fail(err)
	}
	made = append(made, keys)
	var values *storage.Array[V]
	if t.values.enabled() {
		if values, err = t.values.arr.Resized(delta); err != nil {
			return fail(err)
		}
		made = append(made, values)
	}
	old := []*storage.Array[int32]{t.left, t.right, t.parent, t.heights}
	links := make([]*storage.Array[int32], len(old))
	for i := range old {
		if links[i], err = old[i].Resized(delta); err != nil {
			return fail(err)
		}
		made = append(made, links[i])
	}

	_ = t.keys.Close()
	_ = t.values.arr.Close()
	for _, a := range old {
		_ = a.Close()
	}
	t.keys, t.values = keys, valueColumn[V]{values}
	t.left, t.right, t.parent, t.heights = links[0], links[1], links[2], links[3]
	return nil
}

// grow makes room for at least one more node by doubling the arena.
func (t *Tree[K, V]) grow() error {
	capacity := t.keys.Len()
	if capacity >= math.MaxInt32 {
		return fmt.Errorf("%w: tree arena at maximum capacity %d", ErrOutOfBounds, capacity)
	}
	n := min(capacity+max(capacity, minArenaGrowth), math.MaxInt32)
	if err := t.resize(n); err != nil {
		return err
	}
	t.logger.Debug("tree arena grown",
		slog.Int("from", capacity),
		slog.Int("to", n),
		slog.Int("size", t.size))
	return nil
}

// TrimToSize shrinks the arena to exactly Len() nodes.
func (t *Tree[K, V]) TrimToSize() error {
	capacity := t.keys.Len()
	if capacity == t.size {
		return nil
	}
	if err := t.resize(t.size); err != nil {
		return err
	}
	t.logger.Debug("tree arena trimmed", slog.Int("from", capacity), slog.Int("to", t.size))
	return nil
}

// Close releases the arena. It is unnecessary to close a tree using heap
// storage. It is invalid to use a tree after it has been closed, though Close
// itself is idempotent.
func (t *Tree[K, V]) Close() error {
	if t.keys == nil {
		return nil
	}
	err := t.keys.Close()
	for _, a := range []io.Closer{t.values.arr, t.left, t.right, t.parent, t.heights} {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}
	t.keys, t.values = nil, valueColumn[V]{}
	t.left, t.right, t.parent, t.heights = nil, nil, nil, nil
	t.root, t.size = NoIndex, 0
	return err
}

func (t *Tree[K, V]) leftOf(n int32) int32   { return t.left.Get(int(n)) }
func (t *Tree[K, V]) rightOf(n int32) int32  { return t.right.Get(int(n)) }
func (t *Tree[K, V]) parentOf(n int32) int32 { return t.parent.Get(int(n)) }
func (t *Tree[K, V]) keyOf(n int32) K        { return t.keys.Get(int(n)) }

func (t *Tree[K, V]) setLeft(n, c int32) {
	t.left.Set(int(n), c)
	if c != NoIndex {
		t.parent.Set(int(c), n)
	}
}

func (t *Tree[K, V]) setRight(n, c int32) {
	t.right.Set(int(n), c)
	if c != NoIndex {
		t.parent.Set(int(c), n)
	}
}

// height returns the cached height of the subtree rooted at n.
func (t *Tree[K, V]) height(n int32) int32 {
	if n == NoIndex {
		return -1
	}
	return t.heights.Get(int(n))
}

// fix recomputes the cached height of n from its children.
func (t *Tree[K, V]) fix(n int32) {
	t.heights.Set(int(n), 1+max(t.height(t.leftOf(n)), t.height(t.rightOf(n))))
}

// replaceChild makes c take the place of n as a child of p, or as the root if
// p is NoIndex.
func (t *Tree[K, V]) replaceChild(p, n, c int32) {
	switch {
	case p == NoIndex:
		t.root = c
		if c != NoIndex {
			t.parent.Set(int(c), NoIndex)
		}
	case t.leftOf(p) == n:
		t.setLeft(p, c)
	default:
		t.setRight(p, c)
	}
}

// rotateLeft lifts the right child of n into n's place, making n its left
// child. It is a no-op if n has no right child.
func (t *Tree[K, V]) rotateLeft(n int32) {
	pivot := t.rightOf(n)
	if pivot == NoIndex {
		return
	}
	t.replaceChild(t.parentOf(n), n, pivot)
	t.setRight(n, t.leftOf(pivot))
	t.setLeft(pivot, n)
	t.fix(n)
	t.fix(pivot)
	t.mods++
}

// rotateRight lifts the left child of n into n's place, making n its right
// child. It is a no-op if n has no left child.
func (t *Tree[K, V]) rotateRight(n int32) {
	pivot := t.leftOf(n)
	if pivot == NoIndex {
		return
	}
	t.replaceChild(t.parentOf(n), n, pivot)
	t.setLeft(n, t.rightOf(pivot))
	t.setRight(pivot, n)
	t.fix(n)
	t.fix(pivot)
	t.mods++
}

func (t *Tree[K, V]) skew(n int32) int32 {
	return t.height(t.leftOf(n)) - t.height(t.rightOf(n))
}

func (t *Tree[K, V]) balanced(n int32) bool {
	d := t.skew(n)
	return d <= int32(t.tolerance) && -d <= int32(t.tolerance)
}

// balance restores the balance of the subtree rooted at n and returns the
// index of the subtree's new root. Both child subtrees of n must already be
// balanced and carry correct heights.
func (t *Tree[K, V]) balance(n int32) int32 {
	for !t.balanced(n) {
		if t.skew(n) > 0 {
			l := t.leftOf(n)
			if t.height(t.rightOf(l)) > t.height(t.leftOf(l)) {
				t.descendLeft(l)
				t.fix(n)
			}
			n = t.descendRight(n)
		} else {
			r := t.rightOf(n)
			if t.height(t.leftOf(r)) > t.height(t.rightOf(r)) {
				t.descendRight(r)
				t.fix(n)
			}
			n = t.descendLeft(n)
		}
	}
	return n
}

// descendLeft rotates n left, rebalances n in its new, lower position and
// returns the node that took n's place.
func (t *Tree[K, V]) descendLeft(n int32) int32 {
	top := t.rightOf(n)
	t.rotateLeft(n)
	t.balance(n)
	t.fix(top)
	return top
}

// descendRight is the mirror image of descendLeft.
func (t *Tree[K, V]) descendRight(n int32) int32 {
	top := t.leftOf(n)
	t.rotateRight(n)
	t.balance(n)
	t.fix(top)
	return top
}

// retrace restores heights and balance on the path from n up to the root.
// Subtrees off that path must be balanced and carry correct heights.
func (t *Tree[K, V]) retrace(n int32) {
	for n != NoIndex {
		t.fix(n)
		if t.tolerance > 0 {
			n = t.balance(n)
		}
		n = t.parentOf(n)
	}
}

// Index returns the index of a node whose key compares equal to key, or
// NoIndex.
func (t *Tree[K, V]) Index(key K) int {
	n := t.root
	for n != NoIndex {
		switch c := t.compare(key, t.keyOf(n)); {
		case c < 0:
			n = t.leftOf(n)
		case c > 0:
			n = t.rightOf(n)
		default:
			return int(n)
		}
	}
	return NoIndex
}

// Contains reports whether a key comparing equal to key is present.
func (t *Tree[K, V]) Contains(key K) bool {
	return t.Index(key) != NoIndex
}

// Insert adds key to the tree and returns the index of its node. If
// duplicates are forbidden and an equal key is present the tree is unchanged
// and NoIndex is returned. Equal keys, when permitted, are placed after the
// keys they compare equal to.
func (t *Tree[K, V]) Insert(key K) (int, error) {
	p := t.root
	var less bool
	for n := t.root; n != NoIndex; {
		c := t.compare(key, t.keyOf(n))
		if c == 0 && !t.duplicates {
			return NoIndex, nil
		}
		p, less = n, c < 0
		if less {
			n = t.leftOf(n)
		} else {
			n = t.rightOf(n)
		}
	}

	if t.size == t.keys.Len() {
		if err := t.grow(); err != nil {
			return NoIndex, err
		}
	}
	i := int32(t.size)
	t.keys.Set(int(i), key)
	t.left.Set(int(i), NoIndex)
	t.right.Set(int(i), NoIndex)
	t.parent.Set(int(i), NoIndex)
	t.heights.Set(int(i), 0)
	t.size++
	t.mods++

	switch {
	case p == NoIndex:
		t.root = i
	case less:
		t.setLeft(p, i)
	default:
		t.setRight(p, i)
	}
	t.retrace(p)
	t.checkInvariants()
	return int(i), nil
}

// Remove removes a node whose key compares equal to key and returns the index
// it occupied, or NoIndex if no such node exists. The node previously stored
// at the last index moves into the returned index.
func (t *Tree[K, V]) Remove(key K) int {
	i := t.Index(key)
	if i == NoIndex {
		return NoIndex
	}
	t.removeAt(int32(i))
	return i
}

// RemoveAt removes the node at index i. The node previously stored at index
// Len()-1 moves into index i.
func (t *Tree[K, V]) RemoveAt(i int) error {
	if err := t.checkIndex(i); err != nil {
		return err
	}
	t.removeAt(int32(i))
	return nil
}

// removeAt removes node i and returns the index of the node that was moved
// into i to keep the arena dense, or NoIndex if nothing moved.
func (t *Tree[K, V]) removeAt(i int32) int32 {
	// Rotate i down, always towards its shorter side, until it is a leaf.
	// Every rotation preserves the search order and reduces the height of
	// the subtree rooted at i, so this terminates.
	for {
		l, r := t.leftOf(i), t.rightOf(i)
		if l == NoIndex && r == NoIndex {
			break
		}
		if t.height(l) < t.height(r) {
			t.rotateLeft(i)
		} else {
			t.rotateRight(i)
		}
	}

	p := t.parentOf(i)
	t.replaceChild(p, i, NoIndex)
	t.size--
	t.mods++

	last := int32(t.size)
	moved := int32(NoIndex)
	if i != last {
		t.move(last, i)
		if p == last {
			p = i
		}
		moved = last
	}
	t.clearSlot(last)

	t.retrace(p)
	t.checkInvariants()
	return moved
}

// move copies node from into the unused slot to and repoints its parent and
// children at the new index.
func (t *Tree[K, V]) move(from, to int32) {
	t.keys.Set(int(to), t.keyOf(from))
	if t.values.enabled() {
		t.values.arr.Set(int(to), t.values.arr.Get(int(from)))
	}
	t.heights.Set(int(to), t.height(from))
	t.left.Set(int(to), NoIndex)
	t.right.Set(int(to), NoIndex)
	t.replaceChild(t.parentOf(from), from, to)
	t.setLeft(to, t.leftOf(from))
	t.setRight(to, t.rightOf(from))
}

func (t *Tree[K, V]) clearSlot(n int32) {
	var k K
	t.keys.Set(int(n), k)
	if t.values.enabled() {
		var v V
		t.values.arr.Set(int(n), v)
	}
	t.left.Set(int(n), NoIndex)
	t.right.Set(int(n), NoIndex)
	t.parent.Set(int(n), NoIndex)
	t.heights.Set(int(n), 0)
}

// Clear removes every node, keeping the arena.
func (t *Tree[K, V]) Clear() {
	t.root = NoIndex
	t.size = 0
	t.mods++
}

// Len returns the number of nodes in the tree.
func (t *Tree[K, V]) Len() int {
	return t.size
}

// Capacity returns the number of nodes the arena holds before growing.
func (t *Tree[K, V]) Capacity() int {
	return t.keys.Len()
}

// Root returns the index of the root node, or NoIndex if the tree is empty.
func (t *Tree[K, V]) Root() int {
	return int(t.root)
}

// Modifications returns a counter that changes on every structural change,
// including rotations.
func (t *Tree[K, V]) Modifications() uint64 {
	return t.mods
}

// checkIndex distinguishes indices outside the arena from arena slots past
// the last live node.
func (t *Tree[K, V]) checkIndex(i int) error {
	if i < 0 || i >= t.keys.Len() {
		return fmt.Errorf("%w: node %d not in [0, %d)", ErrOutOfBounds, i, t.keys.Len())
	}
	if i >= t.size {
		return fmt.Errorf("%w: node %d is unused, size is %d", ErrMissingElement, i, t.size)
	}
	return nil
}

// Height returns the height of the subtree rooted at node i, computed from
// the links: -1 for NoIndex and 0 for a leaf.
func (t *Tree[K, V]) Height(i int) int {
	if i == NoIndex {
		return -1
	}
	n := int32(i)
	return 1 + max(t.Height(int(t.leftOf(n))), t.Height(int(t.rightOf(n))))
}

// KeyAt returns the key of node i.
func (t *Tree[K, V]) KeyAt(i int) (K, error) {
	if err := t.checkIndex(i); err != nil {
		var k K
		return k, err
	}
	return t.keys.Get(i), nil
}

// keyAt returns the key of node i, or false if i is NoIndex.
func (t *Tree[K, V]) keyAt(i int) (K, bool) {
	if i == NoIndex {
		var k K
		return k, false
	}
	return t.keys.Get(i), true
}

// ValueAt returns the value of node i.
func (t *Tree[K, V]) ValueAt(i int) (V, error) {
	var v V
	if !t.values.enabled() {
		return v, fmt.Errorf("%w: tree stores no values", ErrInvalidArgument)
	}
	if err := t.checkIndex(i); err != nil {
		return v, err
	}
	return t.values.arr.Get(i), nil
}

// SetValueAt stores v as the value of node i.
func (t *Tree[K, V]) SetValueAt(i int, v V) error {
	if !t.values.enabled() {
		return fmt.Errorf("%w: tree stores no values", ErrInvalidArgument)
	}
	if err := t.checkIndex(i); err != nil {
		return err
	}
	t.values.arr.Set(i, v)
	return nil
}

// ContainsValue reports whether any node holds value v.
func (t *Tree[K, V]) ContainsValue(v V) bool {
	return t.values.contains(v, t.size, func(int) bool { return true })
}

// Keys returns the keys of the tree in key order.
func (t *Tree[K, V]) Keys() []K {
	r := make([]K, 0, t.size)
	for n := t.leftmost(t.root); n != NoIndex; n = t.successor(n) {
		r = append(r, t.keyOf(n))
	}
	return r
}

// Values returns the values of the tree in key order. It returns nil if the
// tree stores no values.
func (t *Tree[K, V]) Values() []V {
	if !t.values.enabled() {
		return nil
	}
	r := make([]V, 0, t.size)
	for n := t.leftmost(t.root); n != NoIndex; n = t.successor(n) {
		r = append(r, t.values.arr.Get(int(n)))
	}
	return r
}

func (t *Tree[K, V]) leftmost(n int32) int32 {
	if n == NoIndex {
		return NoIndex
	}
	for l := t.leftOf(n); l != NoIndex; l = t.leftOf(n) {
		n = l
	}
	return n
}

func (t *Tree[K, V]) rightmost(n int32) int32 {
	if n == NoIndex {
		return NoIndex
	}
	for r := t.rightOf(n); r != NoIndex; r = t.rightOf(n) {
		n = r
	}
	return n
}

// successor returns the node following n in key order, or NoIndex.
func (t *Tree[K, V]) successor(n int32) int32 {
	if r := t.rightOf(n); r != NoIndex {
		return t.leftmost(r)
	}
	for {
		p := t.parentOf(n)
		if p == NoIndex || t.leftOf(p) == n {
			return p
		}
		n = p
	}
}

// Min returns the index of a node with the smallest key, or NoIndex.
func (t *Tree[K, V]) Min() int {
	return int(t.leftmost(t.root))
}

// Max returns the index of a node with the largest key, or NoIndex.
func (t *Tree[K, V]) Max() int {
	return int(t.rightmost(t.root))
}

// All returns an iterator over the keys and values of the tree in key
// order. Values are zero if the tree stores none. The iterator panics with
// ErrConcurrentModification if the tree is modified during iteration.
func (t *Tree[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		it := t.Ascend()
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

func (t *Tree[K, V]) checkInvariants() {
	if invariants {
		if err := t.verify(); err != nil {
			panic(fmt.Sprintf("invariant failed: %v\n%s", err, t.debugString()))
		}
	}
}

// verify checks the structure of the tree: every index in [0, Len()) is
// reachable from the root exactly once, links are mutually consistent, keys
// are in order, cached heights are exact and, if balancing is enabled, no
// node is out of balance.
func (t *Tree[K, V]) verify() error {
	if t.size == 0 {
		if t.root != NoIndex {
			return fmt.Errorf("empty tree has root %d", t.root)
		}
		return nil
	}
	if t.root == NoIndex || t.parentOf(t.root) != NoIndex {
		return fmt.Errorf("bad root %d", t.root)
	}
	seen := make([]bool, t.size)
	var walk func(n int32) (int32, error)
	walk = func(n int32) (int32, error) {
		if n == NoIndex {
			return -1, nil
		}
		if n < 0 || int(n) >= t.size {
			return 0, fmt.Errorf("node %d outside [0, %d)", n, t.size)
		}
		if seen[n] {
			return 0, fmt.Errorf("node %d reachable twice", n)
		}
		seen[n] = true
		l, r := t.leftOf(n), t.rightOf(n)
		if l != NoIndex && (t.parentOf(l) != n || t.compare(t.keyOf(l), t.keyOf(n)) > 0) {
			return 0, fmt.Errorf("bad left child %d of %d", l, n)
		}
		if r != NoIndex && (t.parentOf(r) != n || t.compare(t.keyOf(r), t.keyOf(n)) < 0) {
			return 0, fmt.Errorf("bad right child %d of %d", r, n)
		}
		hl, err := walk(l)
		if err != nil {
			return 0, err
		}
		hr, err := walk(r)
		if err != nil {
			return 0, err
		}
		h := 1 + max(hl, hr)
		if h != t.height(n) {
			return 0, fmt.Errorf("node %d has height %d, cached %d", n, h, t.height(n))
		}
		if t.tolerance > 0 && !t.balanced(n) {
			return 0, fmt.Errorf("node %d out of balance: %d vs %d", n, hl, hr)
		}
		return h, nil
	}
	if _, err := walk(t.root); err != nil {
		return err
	}
	for i, ok := range seen {
		if !ok {
			return fmt.Errorf("node %d unreachable", i)
		}
	}
	// Inorder traversal must be non-decreasing.
	for n := t.leftmost(t.root); n != NoIndex; {
		s := t.successor(n)
		if s != NoIndex && t.compare(t.keyOf(n), t.keyOf(s)) > 0 {
			return fmt.Errorf("nodes %d and %d out of order", n, s)
		}
		n = s
	}
	return nil
}

func (t *Tree[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  size=%d  root=%d\n", t.keys.Len(), t.size, t.root)
	for i := int32(0); int(i) < t.size; i++ {
		fmt.Fprintf(&buf, "  %4d: %v [left=%d right=%d parent=%d height=%d]\n",
			i, t.keyOf(i), t.leftOf(i), t.rightOf(i), t.parentOf(i), t.height(i))
	}
	return buf.String()
}
