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
	"fmt"
	"iter"
	"log/slog"

	"github.com/cockroachdb/flatcoll/storage"
)

// ArrayList is a growable sequence of elements in contiguous storage.
type ArrayList[T storage.Element] struct {
	data   *storage.Array[T]
	size   int
	logger *slog.Logger
}

// NewArrayList constructs a list with room for initialCapacity elements. Only
// WithStrategy and WithLogger apply to lists.
func NewArrayList[T storage.Element](initialCapacity int, options ...Option[T]) (*ArrayList[T], error) {
	c := makeConfig(options)
	data, err := storage.New[T](initialCapacity, c.strategy)
	if err != nil {
		return nil, err
	}
	return &ArrayList[T]{data: data, logger: c.logger}, nil
}

// Add appends v to the list.
func (l *ArrayList[T]) Add(v T) error {
	if l.size == l.data.Len() {
		capacity := l.data.Len()
		delta := min(max(capacity, minArenaGrowth), l.data.MaxLen()-capacity)
		if delta == 0 {
			return fmt.Errorf("%w: list at maximum capacity %d", ErrOutOfBounds, capacity)
		}
		if err := l.resize(delta); err != nil {
			return err
		}
		l.logger.Debug("list grown", slog.Int("from", capacity), slog.Int("to", l.data.Len()))
	}
	l.data.Set(l.size, v)
	l.size++
	return nil
}

func (l *ArrayList[T]) resize(delta int) error {
	data, err := l.data.Resized(delta)
	if err != nil {
		return err
	}
	_ = l.data.Close()
	l.data = data
	return nil
}

func (l *ArrayList[T]) checkIndex(i int) error {
	if i < 0 || i >= l.size {
		return fmt.Errorf("%w: index %d not in [0, %d)", ErrOutOfBounds, i, l.size)
	}
	return nil
}

// Get returns the element at index i.
func (l *ArrayList[T]) Get(i int) (T, error) {
	if err := l.checkIndex(i); err != nil {
		var v T
		return v, err
	}
	return l.data.Get(i), nil
}

// Set replaces the element at index i.
func (l *ArrayList[T]) Set(i int, v T) error {
	if err := l.checkIndex(i); err != nil {
		return err
	}
	l.data.Set(i, v)
	return nil
}

// RemoveAt removes and returns the element at index i, shifting the elements
// after it down by one.
func (l *ArrayList[T]) RemoveAt(i int) (T, error) {
	if err := l.checkIndex(i); err != nil {
		var v T
		return v, err
	}
	v := l.data.Get(i)
	for j := i + 1; j < l.size; j++ {
		l.data.Set(j-1, l.data.Get(j))
	}
	l.size--
	var zero T
	l.data.Set(l.size, zero)
	return v, nil
}

// Len returns the number of elements in the list.
func (l *ArrayList[T]) Len() int {
	return l.size
}

// Capacity returns the number of elements the list holds before growing.
func (l *ArrayList[T]) Capacity() int {
	return l.data.Len()
}

// TrimToSize shrinks the storage of the list to exactly Len() elements.
func (l *ArrayList[T]) TrimToSize() error {
	capacity := l.data.Len()
	if capacity == l.size {
		return nil
	}
	if err := l.resize(l.size - capacity); err != nil {
		return err
	}
	l.logger.Debug("list trimmed", slog.Int("from", capacity), slog.Int("to", l.size))
	return nil
}

// Clear removes every element, keeping the storage.
func (l *ArrayList[T]) Clear() {
	l.data.Clear()
	l.size = 0
}

// All returns an iterator over the indices and elements of the list.
func (l *ArrayList[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i := 0; i < l.size; i++ {
			if !yield(i, l.data.Get(i)) {
				return
			}
		}
	}
}

// Close releases the storage of the list.
func (l *ArrayList[T]) Close() error {
	err := l.data.Close()
	l.data, l.size = nil, 0
	return err
}
