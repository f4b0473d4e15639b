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

// Package naive is a latest-version-wins solver.
//
// It resolves the requested specs and their transitive dependencies
// against the pool, always taking the highest version (then the
// highest build number) among the matching candidates.  The first
// resolution of a name wins; if a later spec for that name isn't
// satisfied by what's already chosen, the solve fails rather than
// backtracks.  That's the "naive" part.
package naive

import (
	"context"

	"github.com/Comcast/packmule/graph"
	"github.com/Comcast/packmule/matchspec"
	"github.com/Comcast/packmule/record"
	"github.com/Comcast/packmule/version"
)

// Unsatisfiable reports a spec with no usable candidate in the pool.
type Unsatisfiable struct {
	Spec string
}

func (e *Unsatisfiable) Error() string {
	return "unsatisfiable spec " + e.Spec
}

type Solver struct {
}

func NewSolver() *Solver {
	return &Solver{}
}

// Solve picks records for the given specs and their dependencies.
//
// The result comes back in dependency (graph) order.
func (s *Solver) Solve(ctx context.Context, pool []*record.Package, specs []*matchspec.MatchSpec) ([]*record.Package, error) {
	chosen := make(map[string]*record.Package, len(specs))
	queue := make([]*matchspec.MatchSpec, len(specs))
	copy(queue, specs)

	for 0 < len(queue) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		spec := queue[0]
		queue = queue[1:]

		if prev, have := chosen[spec.Name()]; have {
			if spec.Match(prev) {
				continue
			}
			return nil, &Unsatisfiable{Spec: spec.String()}
		}

		best := pickBest(pool, spec)
		if best == nil {
			return nil, &Unsatisfiable{Spec: spec.String()}
		}
		chosen[best.Name] = best

		// Constrains entries only limit versions of packages
		// that are otherwise present; they don't pull anything
		// in.
		for _, dep := range best.Depends {
			depSpec, err := matchspec.Parse(dep)
			if err != nil {
				return nil, err
			}
			queue = append(queue, depSpec)
		}
	}

	recs := make([]*record.Package, 0, len(chosen))
	for _, rec := range chosen {
		recs = append(recs, rec)
	}

	g, err := graph.New(recs, specs)
	if err != nil {
		return nil, err
	}
	return g.Records(), nil
}

// pickBest returns the best matching candidate, or nil.
func pickBest(pool []*record.Package, spec *matchspec.MatchSpec) *record.Package {
	var best *record.Package
	for _, rec := range pool {
		if !spec.Match(rec) {
			continue
		}
		if best == nil || better(rec, best) {
			best = rec
		}
	}
	return best
}

func better(a, b *record.Package) bool {
	va, erra := version.NewVersion(a.Version)
	vb, errb := version.NewVersion(b.Version)
	if erra != nil || errb != nil {
		// Unorderable versions: fall back to the string forms.
		if a.Version != b.Version {
			return a.Version > b.Version
		}
		return a.BuildNumber > b.BuildNumber
	}
	switch va.Compare(vb) {
	case 1:
		return true
	case -1:
		return false
	}
	return a.BuildNumber > b.BuildNumber
}
