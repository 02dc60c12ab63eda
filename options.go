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
	"log/slog"

	"github.com/cockroachdb/flatcoll/storage"
)

const (
	defaultLoadFactor       = 0.5
	defaultBalanceTolerance = 1
)

// config holds the settings shared by the containers in this package. Each
// container reads only the fields relevant to it.
type config[K storage.Element] struct {
	hash       HashFunc[K]
	loadFactor float64
	values     bool
	strategy   storage.Strategy
	logger     *slog.Logger
	duplicates bool
	tolerance  int
}

func makeConfig[K storage.Element](options []Option[K]) config[K] {
	c := config[K]{
		loadFactor: defaultLoadFactor,
		strategy:   storage.Heap,
		tolerance:  defaultBalanceTolerance,
	}
	for _, op := range options {
		op.apply(&c)
	}
	if c.hash == nil {
		c.hash = defaultHash[K]()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Option configures a container while it is being created.
type Option[K storage.Element] interface {
	apply(c *config[K])
}

type hashOption[K storage.Element] struct {
	hash HashFunc[K]
}

func (op hashOption[K]) apply(c *config[K]) {
	c.hash = op.hash
}

// WithHash specifies the hash function of a hash table. Only the low 31 bits
// of the result are used.
func WithHash[K storage.Element](hash HashFunc[K]) Option[K] {
	return hashOption[K]{hash}
}

type loadFactorOption[K storage.Element] struct {
	loadFactor float64
}

func (op loadFactorOption[K]) apply(c *config[K]) {
	c.loadFactor = op.loadFactor
}

// WithLoadFactor sets the fraction of a hash table's slots that may be
// occupied before it grows. It must lie in (0, 1); the default is 0.5.
func WithLoadFactor[K storage.Element](loadFactor float64) Option[K] {
	return loadFactorOption[K]{loadFactor}
}

type valuesOption[K storage.Element] struct{}

func (valuesOption[K]) apply(c *config[K]) {
	c.values = true
}

// WithValues allocates value storage alongside the keys, turning a hash
// table or tree into the backing store of a map.
func WithValues[K storage.Element]() Option[K] {
	return valuesOption[K]{}
}

type strategyOption[K storage.Element] struct {
	strategy storage.Strategy
}

func (op strategyOption[K]) apply(c *config[K]) {
	c.strategy = op.strategy
}

// WithStrategy selects where a container allocates its storage. Containers
// using storage.Native must be closed to release their memory.
func WithStrategy[K storage.Element](strategy storage.Strategy) Option[K] {
	return strategyOption[K]{strategy}
}

type loggerOption[K storage.Element] struct {
	logger *slog.Logger
}

func (op loggerOption[K]) apply(c *config[K]) {
	c.logger = op.logger
}

// WithLogger sets the logger that receives debug records about growth,
// rehashing and trimming. By default nothing is logged.
func WithLogger[K storage.Element](logger *slog.Logger) Option[K] {
	return loggerOption[K]{logger}
}

type duplicatesOption[K storage.Element] struct {
	allow bool
}

func (op duplicatesOption[K]) apply(c *config[K]) {
	c.duplicates = op.allow
}

// WithDuplicates controls whether a tree accepts keys that compare equal to a
// key it already holds. Duplicates are rejected by default.
func WithDuplicates[K storage.Element](allow bool) Option[K] {
	return duplicatesOption[K]{allow}
}

type toleranceOption[K storage.Element] struct {
	tolerance int
}

func (op toleranceOption[K]) apply(c *config[K]) {
	c.tolerance = op.tolerance
}

// WithBalanceTolerance sets the largest height difference a tree permits
// between sibling subtrees. 1 yields AVL balance, larger values trade lookup
// depth for fewer rotations and a non-positive value disables balancing.
func WithBalanceTolerance[K storage.Element](tolerance int) Option[K] {
	return toleranceOption[K]{tolerance}
}
