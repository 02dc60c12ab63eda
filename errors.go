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
	"errors"

	"github.com/cockroachdb/flatcoll/storage"
)

var (
	// ErrOutOfBounds is returned when an index, length or capacity falls
	// outside the addressable range.
	ErrOutOfBounds = storage.ErrOutOfBounds
	// ErrInvalidArgument is returned for malformed configuration such as a
	// load factor outside (0, 1).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvariantViolation is returned when a structure finds itself in a
	// state its own bookkeeping should have made impossible, for example a
	// hash table with neither free nor tombstoned slots.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrMissingElement is returned when an index does not hold a live
	// element.
	ErrMissingElement = errors.New("missing element")
	// ErrConcurrentModification is returned by an iterator whose structure
	// was modified by anything other than the iterator itself.
	ErrConcurrentModification = errors.New("concurrent modification")
)
