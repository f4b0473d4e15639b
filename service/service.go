/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package service hosts prefixes behind a little JSON operation
// protocol.
//
// A Service holds named prefixes, each a set of package records plus
// the specs that were requested for it.  Operations arrive as JSON
// (see Op), get executed against a prefix, and carry their results
// back in the same structure.  The transports (HTTP, WebSockets,
// MQTT) live in cmd/; this package doesn't care how an Op arrives.
package service

import (
	"context"
	"log"
	"sync"

	"github.com/Comcast/packmule/graph"
	"github.com/Comcast/packmule/matchspec"
	"github.com/Comcast/packmule/record"
	"github.com/Comcast/packmule/solver"
	"github.com/Comcast/packmule/store"
)

type Service struct {
	sync.Mutex

	// Storage, if not nil, persists prefix records across
	// restarts.
	Storage *store.Storage

	// Solvers maps solver names to backends for SolveOp.
	Solvers solver.SolversMap

	Verbose bool

	prefixes map[string]*prefix
}

// prefix is a set of records plus the specs requested for it.
type prefix struct {
	records []*record.Package
	specs   []*matchspec.MatchSpec
}

func NewService() *Service {
	return &Service{
		Solvers:  solver.Standard(),
		prefixes: make(map[string]*prefix, 4),
	}
}

func (s *Service) logf(format string, args ...interface{}) {
	if s.Verbose {
		log.Printf(format, args...)
	}
}

// prefixState returns the named prefix, creating it if necessary.
// When Storage is set, a prefix we haven't seen yet is read from
// there first.
//
// The caller must hold the Service lock.
func (s *Service) prefixState(ctx context.Context, name string) (*prefix, error) {
	if name == "" {
		name = "default"
	}
	p, have := s.prefixes[name]
	if have {
		return p, nil
	}
	p = &prefix{}
	if s.Storage != nil {
		recs, err := s.Storage.GetRecords(ctx, name)
		if err != nil {
			return nil, err
		}
		p.records = recs
	}
	s.prefixes[name] = p
	return p, nil
}

// graph builds the prefix's dependency graph.
func (p *prefix) graph() (*graph.PrefixGraph, error) {
	return graph.New(p.records, p.specs)
}

// Graph builds the dependency graph for a prefix, for callers that
// render it (see the tools package).
func (s *Service) Graph(ctx context.Context, name string) (*graph.PrefixGraph, error) {
	s.Lock()
	defer s.Unlock()
	p, err := s.prefixState(ctx, name)
	if err != nil {
		return nil, err
	}
	return p.graph()
}

// setRecords replaces the prefix's records, mirroring to Storage when
// configured.
func (s *Service) setRecords(ctx context.Context, name string, p *prefix, recs []*record.Package) error {
	if name == "" {
		name = "default"
	}
	p.records = recs
	if s.Storage != nil {
		if err := s.Storage.RemPrefix(ctx, name); err != nil {
			// A prefix that was never written has no bucket.
			s.logf("Service.setRecords RemPrefix %s: %v", name, err)
		}
		return s.Storage.WriteRecords(ctx, name, recs)
	}
	return nil
}

func parseSpecs(strs []string) ([]*matchspec.MatchSpec, error) {
	acc := make([]*matchspec.MatchSpec, len(strs))
	for i, str := range strs {
		spec, err := matchspec.Parse(str)
		if err != nil {
			return nil, err
		}
		acc[i] = spec
	}
	return acc, nil
}
