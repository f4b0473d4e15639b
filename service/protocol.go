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

package service

import (
	"context"
	"fmt"

	"github.com/Comcast/packmule/matchspec"
	"github.com/Comcast/packmule/record"
	"github.com/Comcast/packmule/solver/goja"
)

// Op is a service operation.
//
// In normal use, only one of the operation fields should be given.
// Results are written back into the operation, so marshaling the Op
// after Do gives the reply.
type Op struct {
	// Prefix names the prefix the operation targets.  Empty means
	// "default".
	Prefix string `json:"prefix,omitempty" yaml:",omitempty"`

	// Load replaces the prefix's records with the given ones.
	Load *LoadOp `json:"load,omitempty" yaml:",omitempty"`

	// Fetch pulls a records document from a URL.
	Fetch *FetchOp `json:"fetch,omitempty" yaml:",omitempty"`

	// Records returns the prefix's records in graph order.
	Records *RecordsOp `json:"records,omitempty" yaml:",omitempty"`

	// Remove removes the records matching a spec along with their
	// dependents.
	Remove *RemoveOp `json:"remove,omitempty" yaml:",omitempty"`

	// Prune removes records that nothing requested depends on.
	Prune *PruneOp `json:"prune,omitempty" yaml:",omitempty"`

	// Match matches one spec against records.
	Match *MatchOp `json:"match,omitempty" yaml:",omitempty"`

	// Solve runs a solver against the prefix's records.
	Solve *SolveOp `json:"solve,omitempty" yaml:",omitempty"`

	// Error will hold an error (if any) that results from
	// processing this operation.
	Error error `json:"-" yaml:"-"`

	// Err will hold a string representation of an error (if any)
	// that results from processing this operation.
	Err string `json:"err,omitempty" yaml:",omitempty"`
}

// erred is a utility function to return values to assign to operation
// Error and Err fields.
func erred(err error) (error, string) {
	if err == nil {
		return nil, ""
	}
	return err, err.Error()
}

func (o *Op) Do(ctx context.Context, s *Service) error {
	s.Lock()
	defer s.Unlock()

	p, err := s.prefixState(ctx, o.Prefix)
	if err == nil {
		switch {
		case o.Load != nil:
			err = o.Load.do(ctx, s, o.Prefix, p)
		case o.Fetch != nil:
			err = o.Fetch.do(ctx, s, o.Prefix, p)
		case o.Records != nil:
			err = o.Records.do(ctx, s, p)
		case o.Remove != nil:
			err = o.Remove.do(ctx, s, o.Prefix, p)
		case o.Prune != nil:
			err = o.Prune.do(ctx, s, o.Prefix, p)
		case o.Match != nil:
			err = o.Match.do(ctx, s, p)
		case o.Solve != nil:
			err = o.Solve.do(ctx, s, p)
		default:
			err = fmt.Errorf("empty operation")
		}
	}

	if err != nil && o.Error == nil {
		o.Error, o.Err = erred(err)
	}

	return o.Error
}

// LoadOp replaces the prefix's records (and optionally its requested
// specs).
type LoadOp struct {
	Records []*record.Package `json:"records,omitempty" yaml:",omitempty"`
	Specs   []string          `json:"specs,omitempty" yaml:",omitempty"`

	// Count reports how many records the prefix now has.
	Count int `json:"count" yaml:"count"`
}

func (o *LoadOp) do(ctx context.Context, s *Service, name string, p *prefix) error {
	if o.Specs != nil {
		specs, err := parseSpecs(o.Specs)
		if err != nil {
			return err
		}
		p.specs = specs
	}
	if o.Records != nil {
		if err := s.setRecords(ctx, name, p, o.Records); err != nil {
			return err
		}
	}
	o.Count = len(p.records)
	return nil
}

// FetchOp GETs a records document (JSON or YAML) and loads it into
// the prefix.
type FetchOp struct {
	URL string `json:"url" yaml:"url"`

	// Jar, if given, carries cookies across fetches.
	Jar *Jar `json:"jar,omitempty" yaml:",omitempty"`

	Count int `json:"count" yaml:"count"`
}

func (o *FetchOp) do(ctx context.Context, s *Service, name string, p *prefix) error {
	req := &HTTPRequest{
		Method:    "GET",
		URL:       o.URL,
		CookieJar: o.Jar,
	}
	var recs []*record.Package
	err := req.Do(ctx, func(ctx context.Context, resp *HTTPResponse) error {
		if resp.Error != nil {
			return resp.Error
		}
		if resp.StatusCode != 200 {
			return fmt.Errorf("fetch status %s", resp.Status)
		}
		var err error
		if recs, err = record.ParseJSON([]byte(resp.Body)); err != nil {
			recs, err = record.ParseYAML([]byte(resp.Body))
		}
		return err
	})
	if err != nil {
		return err
	}
	if err = s.setRecords(ctx, name, p, recs); err != nil {
		return err
	}
	o.Count = len(recs)
	return nil
}

// RecordsOp reports the prefix's records in dependency order.
type RecordsOp struct {
	Records []*record.Package `json:"records,omitempty" yaml:",omitempty"`
}

func (o *RecordsOp) do(ctx context.Context, s *Service, p *prefix) error {
	g, err := p.graph()
	if err != nil {
		return err
	}
	o.Records = g.Records()
	return nil
}

// RemoveOp removes the records matching Spec, plus everything that
// depends on them.
type RemoveOp struct {
	Spec string `json:"spec" yaml:"spec"`

	Removed []*record.Package `json:"removed,omitempty" yaml:",omitempty"`
}

func (o *RemoveOp) do(ctx context.Context, s *Service, name string, p *prefix) error {
	spec, err := matchspec.Parse(o.Spec)
	if err != nil {
		return err
	}
	g, err := p.graph()
	if err != nil {
		return err
	}
	o.Removed = g.RemoveSpec(spec)
	return s.setRecords(ctx, name, p, g.Records())
}

// PruneOp removes records that aren't needed by any requested spec.
type PruneOp struct {
	Removed []*record.Package `json:"removed,omitempty" yaml:",omitempty"`
}

func (o *PruneOp) do(ctx context.Context, s *Service, name string, p *prefix) error {
	g, err := p.graph()
	if err != nil {
		return err
	}
	o.Removed = g.Prune()
	return s.setRecords(ctx, name, p, g.Records())
}

// MatchOp matches a spec against the given records, or against the
// prefix's records if none are given.
type MatchOp struct {
	Spec    string            `json:"spec" yaml:"spec"`
	Records []*record.Package `json:"records,omitempty" yaml:",omitempty"`

	Matches []*record.Package `json:"matches" yaml:"matches"`
}

func (o *MatchOp) do(ctx context.Context, s *Service, p *prefix) error {
	spec, err := matchspec.Parse(o.Spec)
	if err != nil {
		return err
	}
	pool := o.Records
	if pool == nil {
		pool = p.records
	}
	o.Matches = make([]*record.Package, 0, len(pool))
	for _, rec := range pool {
		if spec.Match(rec) {
			o.Matches = append(o.Matches, rec)
		}
	}
	return nil
}

// SolveOp runs a named solver over the prefix's records.
//
// Src, if given, overrides the script of a scripted solver; the op
// then runs a fresh Goja solver regardless of Solver.
type SolveOp struct {
	Solver string   `json:"solver,omitempty" yaml:",omitempty"`
	Src    string   `json:"src,omitempty" yaml:",omitempty"`
	Specs  []string `json:"specs" yaml:"specs"`

	Records []*record.Package `json:"records,omitempty" yaml:",omitempty"`
}

func (o *SolveOp) do(ctx context.Context, s *Service, p *prefix) error {
	specs, err := parseSpecs(o.Specs)
	if err != nil {
		return err
	}

	name := o.Solver
	if name == "" {
		name = "naive"
	}
	backend, have := s.Solvers[name]
	if o.Src != "" {
		backend, have = goja.NewSolver(o.Src), true
	}
	if !have {
		return fmt.Errorf("unknown solver '%s'", name)
	}

	recs, err := backend.Solve(ctx, p.records, specs)
	if err != nil {
		return err
	}
	o.Records = recs
	return nil
}
