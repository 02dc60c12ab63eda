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
	"bytes"
	"cmp"
	"fmt"
	"log/slog"
	"math/bits"
	"math/rand"
	"slices"
	"testing"

	"github.com/cockroachdb/flatcoll/storage"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T, options ...Option[int]) *Tree[int, int] {
	tr, err := NewTree[int, int](0, append(options, WithValues[int]())...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, tr.Close())
	})
	return tr
}

func (t *Tree[K, V]) mustInsert(tb testing.TB, keys ...K) {
	for _, k := range keys {
		_, err := t.Insert(k)
		require.NoError(tb, err)
	}
}

func TestTreeOrder(t *testing.T) {
	keys := []int{100, 50, 150, 25, 1, -1, 2, 75, 1337, 42, 16, 70, 4711, 74, -1000, 32, -32, -16}
	forEachStrategy(t, func(t *testing.T, s storage.Strategy) {
		tr := newTestTree(t, WithStrategy[int](s))
		tr.mustInsert(t, keys...)
		require.EqualValues(t, 18, tr.Len())
		require.NoError(t, tr.verify())

		want := slices.Clone(keys)
		slices.Sort(want)
		require.Equal(t, want, tr.Keys())

		var got []int
		for k := range tr.All() {
			got = append(got, k)
		}
		require.Equal(t, want, got)

		k, err := tr.KeyAt(tr.Min())
		require.NoError(t, err)
		require.EqualValues(t, -1000, k)
		k, err = tr.KeyAt(tr.Max())
		require.NoError(t, err)
		require.EqualValues(t, 4711, k)

		for _, k := range keys {
			i := tr.Index(k)
			require.NotEqual(t, NoIndex, i)
			got, err := tr.KeyAt(i)
			require.NoError(t, err)
			require.EqualValues(t, k, got)
		}
		require.EqualValues(t, NoIndex, tr.Index(3))
	})
}

func TestTreeBalance(t *testing.T) {
	const count = 1000
	for _, tolerance := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("tolerance=%d", tolerance), func(t *testing.T) {
			for _, order := range []string{"ascending", "descending", "random"} {
				t.Run(order, func(t *testing.T) {
					tr := newTestTree(t, WithBalanceTolerance[int](tolerance))
					keys := make([]int, count)
					for i := range keys {
						keys[i] = i
					}
					switch order {
					case "descending":
						slices.Reverse(keys)
					case "random":
						rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
					}
					tr.mustInsert(t, keys...)
					require.NoError(t, tr.verify())

					// An AVL tree of n nodes is at most 1.44*log2(n) high;
					// looser tolerances allow proportionally more.
					h := tr.Height(tr.Root())
					require.LessOrEqual(t, h, (tolerance+1)*bits.Len(count))

					// Removal keeps the tree balanced too.
					for i := 0; i < count; i += 2 {
						require.NotEqual(t, NoIndex, tr.Remove(i))
					}
					require.NoError(t, tr.verify())
				})
			}
		})
	}

	t.Run("disabled", func(t *testing.T) {
		tr := newTestTree(t, WithBalanceTolerance[int](0))
		for i := 0; i < 100; i++ {
			tr.mustInsert(t, i)
		}
		require.NoError(t, tr.verify())
		// Ascending inserts without rebalancing build a chain.
		require.EqualValues(t, 99, tr.Height(tr.Root()))
		require.EqualValues(t, 0, tr.Root())
	})
}

func TestTreeHeight(t *testing.T) {
	tr := newTestTree(t)
	require.EqualValues(t, -1, tr.Height(NoIndex))
	require.EqualValues(t, NoIndex, tr.Root())
	require.EqualValues(t, NoIndex, tr.Min())
	require.EqualValues(t, NoIndex, tr.Max())

	tr.mustInsert(t, 2)
	require.EqualValues(t, 0, tr.Height(tr.Root()))
	tr.mustInsert(t, 1, 3)
	require.EqualValues(t, 1, tr.Height(tr.Root()))
	require.EqualValues(t, 0, tr.Height(tr.Index(1)))
	for i := 0; i < tr.Len(); i++ {
		require.EqualValues(t, tr.Height(i), tr.height(int32(i)))
	}
}

func TestTreeRotations(t *testing.T) {
	tr := newTestTree(t, WithBalanceTolerance[int](0))
	tr.mustInsert(t, 2, 1, 3)
	root := int32(tr.Root())

	// Without a pivot child a rotation is a no-op.
	leaf := int32(tr.Index(1))
	mods := tr.Modifications()
	tr.rotateLeft(leaf)
	tr.rotateRight(leaf)
	require.EqualValues(t, mods, tr.Modifications())

	tr.rotateLeft(root)
	require.EqualValues(t, tr.Index(3), tr.Root())
	require.NoError(t, tr.verify())
	require.Equal(t, []int{1, 2, 3}, tr.Keys())

	tr.rotateRight(int32(tr.Root()))
	tr.rotateRight(int32(tr.Root()))
	require.EqualValues(t, tr.Index(1), tr.Root())
	require.EqualValues(t, 2, tr.Height(tr.Root()))
	require.NoError(t, tr.verify())
	require.Equal(t, []int{1, 2, 3}, tr.Keys())
	require.Greater(t, tr.Modifications(), mods)
}

func TestTreeRandom(t *testing.T) {
	test := func(t *testing.T, tr *Tree[int, int]) {
		e := make(map[int]int)
		for i := 0; i < 3000; i++ {
			k := rand.Intn(500)
			switch r := rand.Float64(); {
			case r < 0.5: // 50% inserts
				j, err := tr.Insert(k)
				require.NoError(t, err)
				if _, ok := e[k]; ok {
					require.EqualValues(t, NoIndex, j)
					continue
				}
				require.EqualValues(t, tr.Len()-1, j)
				v := rand.Int()
				require.NoError(t, tr.SetValueAt(j, v))
				e[k] = v
			case r < 0.9: // 40% deletes
				n := tr.Len()
				last := n - 1
				var lastKey, lastValue int
				if n > 0 {
					lastKey, _ = tr.KeyAt(last)
					lastValue, _ = tr.ValueAt(last)
				}
				j := tr.Remove(k)
				_, ok := e[k]
				require.Equal(t, ok, j != NoIndex)
				if ok {
					delete(e, k)
					require.EqualValues(t, n-1, tr.Len())
					if j != last {
						// The last node was moved into the hole.
						got, err := tr.KeyAt(j)
						require.NoError(t, err)
						require.EqualValues(t, lastKey, got)
						v, err := tr.ValueAt(j)
						require.NoError(t, err)
						require.EqualValues(t, lastValue, v)
					}
				}
			default: // 10% lookups
				v, ok := e[k]
				j := tr.Index(k)
				require.Equal(t, ok, j != NoIndex)
				if ok {
					got, err := tr.ValueAt(j)
					require.NoError(t, err)
					require.EqualValues(t, v, got)
				}
			}
			require.EqualValues(t, len(e), tr.Len())
			if i%50 == 0 {
				require.NoError(t, tr.verify())
			}
		}
		require.NoError(t, tr.verify())

		want := make([]int, 0, len(e))
		for k := range e {
			want = append(want, k)
		}
		slices.Sort(want)
		require.Equal(t, want, tr.Keys())
		for k, v := range tr.All() {
			require.EqualValues(t, e[k], v)
		}
	}

	forEachStrategy(t, func(t *testing.T, s storage.Strategy) {
		for _, tolerance := range []int{0, 1, 2} {
			t.Run(fmt.Sprintf("tolerance=%d", tolerance), func(t *testing.T) {
				test(t, newTestTree(t, WithStrategy[int](s), WithBalanceTolerance[int](tolerance)))
			})
		}
	})
}

func TestTreeDuplicates(t *testing.T) {
	t.Run("forbidden", func(t *testing.T) {
		tr := newTestTree(t)
		tr.mustInsert(t, 5, 3, 8)
		mods := tr.Modifications()
		i, err := tr.Insert(5)
		require.NoError(t, err)
		require.EqualValues(t, NoIndex, i)
		require.EqualValues(t, 3, tr.Len())
		require.EqualValues(t, mods, tr.Modifications())
	})

	t.Run("allowed", func(t *testing.T) {
		tr := newTestTree(t, WithDuplicates[int](true))
		for i := 0; i < 20; i++ {
			tr.mustInsert(t, i%4)
		}
		require.EqualValues(t, 20, tr.Len())
		require.NoError(t, tr.verify())
		want := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 2, 2, 2, 2, 2, 3, 3, 3, 3, 3}
		require.Equal(t, want, tr.Keys())

		for i := 0; i < 5; i++ {
			require.NotEqual(t, NoIndex, tr.Remove(2))
			require.NoError(t, tr.verify())
		}
		require.EqualValues(t, NoIndex, tr.Remove(2))
		require.EqualValues(t, 15, tr.Len())
	})
}

func TestTreeComparator(t *testing.T) {
	_, err := NewTreeFunc[int, int](0, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	reverse := func(a, b int) int { return cmp.Compare(b, a) }
	tr, err := NewTreeFunc[int, int](0, reverse)
	require.NoError(t, err)
	tr.mustInsert(t, 3, 1, 4, 1, 5, 9, 2, 6)
	require.Equal(t, []int{9, 6, 5, 4, 3, 2, 1}, tr.Keys())

	// Keys comparing equal are the same key, whatever their bits.
	byTens := func(a, b int) int { return cmp.Compare(a/10, b/10) }
	tr, err = NewTreeFunc[int, int](0, byTens)
	require.NoError(t, err)
	tr.mustInsert(t, 11, 12, 25, 19)
	require.Equal(t, []int{11, 25}, tr.Keys())
	require.True(t, tr.Contains(17))
}

func TestTreeArena(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	forEachStrategy(t, func(t *testing.T, s storage.Strategy) {
		buf.Reset()
		tr := newTestTree(t, WithStrategy[int](s), WithLogger[int](logger))
		require.EqualValues(t, 0, tr.Capacity())

		tr.mustInsert(t, 0)
		require.EqualValues(t, 8, tr.Capacity())
		require.Contains(t, buf.String(), "from=0 to=8")
		for i := 1; i < 9; i++ {
			tr.mustInsert(t, i)
		}
		require.EqualValues(t, 16, tr.Capacity())

		// Indices are dense: the i-th insert lands at index i.
		for i := 0; i < 9; i++ {
			require.EqualValues(t, i, tr.Index(i))
		}

		require.NoError(t, tr.TrimToSize())
		require.EqualValues(t, 9, tr.Capacity())
		require.Contains(t, buf.String(), "tree arena trimmed")
		require.NoError(t, tr.verify())

		require.EqualValues(t, 0, tr.Remove(0))
		require.EqualValues(t, 8, tr.Len())
		require.EqualValues(t, 0, tr.Index(8))
		require.NoError(t, tr.verify())

		tr.Clear()
		require.EqualValues(t, 0, tr.Len())
		require.EqualValues(t, 9, tr.Capacity())
		require.Empty(t, tr.Keys())
		tr.mustInsert(t, 42)
		require.EqualValues(t, 0, tr.Index(42))

		require.NoError(t, tr.RemoveAt(0))
		require.NoError(t, tr.TrimToSize())
		require.EqualValues(t, 0, tr.Capacity())
	})
}

func TestTreeErrors(t *testing.T) {
	_, err := NewTree[int, int](-1)
	require.ErrorIs(t, err, ErrOutOfBounds)

	tr := newTestTree(t)
	tr.mustInsert(t, 1)
	require.EqualValues(t, 8, tr.Capacity())

	// Unused arena slots hold no element.
	_, err = tr.KeyAt(1)
	require.ErrorIs(t, err, ErrMissingElement)
	_, err = tr.ValueAt(7)
	require.ErrorIs(t, err, ErrMissingElement)
	require.ErrorIs(t, tr.SetValueAt(1, 0), ErrMissingElement)
	require.ErrorIs(t, tr.RemoveAt(1), ErrMissingElement)

	// Indices outside the arena are out of bounds.
	_, err = tr.KeyAt(8)
	require.ErrorIs(t, err, ErrOutOfBounds)
	_, err = tr.ValueAt(-1)
	require.ErrorIs(t, err, ErrOutOfBounds)
	require.ErrorIs(t, tr.SetValueAt(8, 0), ErrOutOfBounds)
	require.ErrorIs(t, tr.RemoveAt(-1), ErrOutOfBounds)
	require.EqualValues(t, NoIndex, tr.Remove(2))

	noValues, err := NewTree[int, int](0)
	require.NoError(t, err)
	noValues.mustInsert(t, 1)
	_, err = noValues.ValueAt(0)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.ErrorIs(t, noValues.SetValueAt(0, 1), ErrInvalidArgument)
	require.Nil(t, noValues.Values())
	require.False(t, noValues.ContainsValue(0))
}

func TestTreeValues(t *testing.T) {
	tr := newTestTree(t)
	for i := 0; i < 100; i++ {
		j, err := tr.Insert(i)
		require.NoError(t, err)
		require.NoError(t, tr.SetValueAt(j, -i))
	}
	for i := 0; i < 100; i += 3 {
		tr.Remove(i)
	}
	require.True(t, tr.ContainsValue(-1))
	require.False(t, tr.ContainsValue(-3))

	keys, values := tr.Keys(), tr.Values()
	require.Len(t, values, len(keys))
	for i, k := range keys {
		require.EqualValues(t, -k, values[i])
		v, err := tr.ValueAt(tr.Index(k))
		require.NoError(t, err)
		require.EqualValues(t, -k, v)
	}
}

func TestTreeAscendRemove(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s storage.Strategy) {
		tr := newTestTree(t, WithStrategy[int](s))
		keys := rand.Perm(200)
		tr.mustInsert(t, keys...)

		var seen []int
		it := tr.Ascend()
		require.ErrorIs(t, it.Remove(), ErrMissingElement)
		for it.Next() {
			require.EqualValues(t, it.Index(), tr.Index(it.Key()))
			seen = append(seen, it.Key())
			if it.Key()%2 == 0 {
				require.NoError(t, it.Remove())
				require.ErrorIs(t, it.Remove(), ErrMissingElement)
			}
		}
		require.NoError(t, it.Err())

		want := make([]int, 200)
		for i := range want {
			want[i] = i
		}
		require.Equal(t, want, seen)
		require.EqualValues(t, 100, tr.Len())
		require.NoError(t, tr.verify())
		for _, k := range tr.Keys() {
			require.EqualValues(t, 1, k%2)
		}

		// Removing everything leaves an empty tree.
		it = tr.Ascend()
		for it.Next() {
			require.NoError(t, it.Remove())
		}
		require.NoError(t, it.Err())
		require.EqualValues(t, 0, tr.Len())
		require.EqualValues(t, NoIndex, tr.Root())
	})
}

func TestTreeScanRemove(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s storage.Strategy) {
		tr := newTestTree(t, WithStrategy[int](s))
		tr.mustInsert(t, rand.Perm(300)...)

		seen := make(map[int]int)
		sc := tr.Scan()
		for sc.Next() {
			k := sc.Key()
			seen[k]++
			require.EqualValues(t, sc.Index(), tr.Index(k))
			if k%3 == 0 {
				require.NoError(t, sc.Remove())
			}
		}
		require.NoError(t, sc.Err())
		require.Len(t, seen, 300)
		for k, n := range seen {
			require.EqualValues(t, 1, n, "key %d", k)
		}
		require.EqualValues(t, 200, tr.Len())
		require.NoError(t, tr.verify())
	})
}

func TestTreeIteratorFailFast(t *testing.T) {
	tr := newTestTree(t)
	tr.mustInsert(t, 1, 2, 3, 4)

	it := tr.Ascend()
	require.True(t, it.Next())
	tr.mustInsert(t, 5)
	require.False(t, it.Next())
	require.ErrorIs(t, it.Err(), ErrConcurrentModification)
	require.ErrorIs(t, it.Remove(), ErrConcurrentModification)

	sc := tr.Scan()
	require.True(t, sc.Next())
	tr.Remove(5)
	require.False(t, sc.Next())
	require.ErrorIs(t, sc.Err(), ErrConcurrentModification)

	require.PanicsWithValue(t, ErrConcurrentModification, func() {
		for k := range tr.All() {
			tr.Remove(k)
		}
	})
}
