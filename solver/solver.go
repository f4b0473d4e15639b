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

// Package solver names the pluggable record-selection capability.
//
// A Solver takes a pool of candidate records and some requested
// specs and picks the records that should end up in a prefix.  This
// package only defines the contract and a registry of standard
// backends; it knows nothing about how a backend chooses.
package solver

import (
	"context"

	"github.com/Comcast/packmule/matchspec"
	"github.com/Comcast/packmule/record"
	"github.com/Comcast/packmule/solver/goja"
	"github.com/Comcast/packmule/solver/naive"
)

// Solver picks records from a pool to satisfy the given specs.
type Solver interface {
	Solve(ctx context.Context, pool []*record.Package, specs []*matchspec.MatchSpec) ([]*record.Package, error)
}

type SolversMap map[string]Solver

func NewSolversMap() SolversMap {
	return make(SolversMap, 4)
}

// Standard returns the stock solvers.
func Standard() SolversMap {
	ss := NewSolversMap()

	n := naive.NewSolver()
	ss["naive"] = n
	ss["latest"] = n // An alias; "latest" says what it does.

	ss["goja"] = goja.NewSolver("")

	return ss
}
