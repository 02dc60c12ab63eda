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

// Package primes provides the capacities used by open-addressing tables.
//
// The table is a curated, strictly increasing list of primes. Below 100 every
// prime except 2 is listed so that small tables stay small; above that each
// entry is the smallest prime greater than twice its predecessor, which bounds
// both the number of rehashes a growing table performs and the memory it
// wastes after one. The final entry is math.MaxInt32, itself prime.
//
// 2 is omitted on purpose: a double-hashing probe step is drawn from
// [1, capacity-2] and is therefore undefined for capacities below 3.
package primes

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/flatcoll/storage"
)

var table = []int{
	3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 67, 71,
	73, 79, 83, 89, 97,
	197, 397, 797, 1597, 3203, 6421, 12853, 25717, 51437, 102877, 205759,
	411527, 823117, 1646237, 3292489, 6584983, 13169977, 26339969, 52679969,
	105359939, 210719881, 421439783, 842879579, 1685759167, 2147483647,
}

// Largest is the largest capacity Next can return.
const Largest = 2147483647

// Next returns the smallest prime in the table that is >= n. An error wrapping
// storage.ErrOutOfBounds is returned if n is negative or larger than Largest.
func Next(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: prime lookup for %d", storage.ErrOutOfBounds, n)
	}
	i := sort.SearchInts(table, n)
	if i == len(table) {
		return 0, fmt.Errorf("%w: no prime >= %d", storage.ErrOutOfBounds, n)
	}
	return table[i], nil
}
