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

// slotState is the state of one slot of a hash table.
//
//	free:      never used since the last clear or rehash; ends a probe
//	occupied:  holds a live key
//	tombstone: held a key that was removed; probes continue past it and
//	           inserts may reuse it
type slotState uint8

const (
	slotFree slotState = iota
	slotOccupied
	slotTombstone
)

func (s slotState) String() string {
	switch s {
	case slotFree:
		return "free"
	case slotOccupied:
		return "occupied"
	case slotTombstone:
		return "tombstone"
	default:
		return "invalid"
	}
}

// slots tracks the slotState of every index in [0, capacity). Free is the
// zero value so freshly allocated storage starts out all free.
type slots struct {
	states *storage.Array[slotState]
}

func makeSlots(capacity int, strategy storage.Strategy) (slots, error) {
	states, err := storage.New[slotState](capacity, strategy)
	if err != nil {
		return slots{}, err
	}
	return slots{states: states}, nil
}

func (s slots) at(i int) slotState {
	return s.states.Get(i)
}

func (s slots) set(i int, v slotState) {
	s.states.Set(i, v)
}

func (s slots) occupied(i int) bool {
	return s.states.Get(i) == slotOccupied
}

// nextOccupied returns the first occupied index >= i, or -1.
func (s slots) nextOccupied(i int) int {
	for n := s.states.Len(); i < n; i++ {
		if s.states.Get(i) == slotOccupied {
			return i
		}
	}
	return -1
}

// reset marks every slot free.
func (s slots) reset() {
	s.states.Clear()
}

func (s slots) close() error {
	return s.states.Close()
}
