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

package naive

import (
	"context"
	"testing"

	"github.com/Comcast/packmule/matchspec"
	"github.com/Comcast/packmule/record"
)

func pool() []*record.Package {
	return []*record.Package{
		{Name: "python", Version: "3.6.5", Build: "0"},
		{Name: "python", Version: "3.7.0", Build: "0"},
		{Name: "flask", Version: "1.0.2", Build: "0",
			Depends: []string{"python >=3.6", "werkzeug >=0.14", "click >=5.1"}},
		{Name: "werkzeug", Version: "0.14.1", Build: "0",
			Depends: []string{"python >=3.6"}},
		{Name: "click", Version: "6.7", Build: "0",
			Depends: []string{"python >=3.6"}},
	}
}

func specs(t *testing.T, strs ...string) []*matchspec.MatchSpec {
	t.Helper()
	acc := make([]*matchspec.MatchSpec, len(strs))
	for i, s := range strs {
		spec, err := matchspec.Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		acc[i] = spec
	}
	return acc
}

func TestSolveLatestWins(t *testing.T) {
	s := NewSolver()
	got, err := s.Solve(context.Background(), pool(), specs(t, "flask"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d records", len(got))
	}
	// dependency order: python first, flask last
	if got[0].Name != "python" || got[0].Version != "3.7.0" {
		t.Errorf("got[0] = %v", got[0])
	}
	if got[len(got)-1].Name != "flask" {
		t.Errorf("got[%d] = %v", len(got)-1, got[len(got)-1])
	}
}

func TestSolveEarlierSpecConstrains(t *testing.T) {
	s := NewSolver()
	got, err := s.Solve(context.Background(), pool(),
		specs(t, "flask", "python <3.7"))
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range got {
		if rec.Name == "python" && rec.Version != "3.6.5" {
			t.Errorf("python = %s", rec.Version)
		}
	}
}

func TestSolveConflict(t *testing.T) {
	s := NewSolver()
	_, err := s.Solve(context.Background(), pool(),
		specs(t, "python >=3.7", "python <3.7"))
	if err == nil {
		t.Fatal("wanted an error")
	}
	if _, is := err.(*Unsatisfiable); !is {
		t.Fatalf("got %T: %v", err, err)
	}
}

func TestSolveUnsatisfiable(t *testing.T) {
	s := NewSolver()
	_, err := s.Solve(context.Background(), pool(), specs(t, "numpy"))
	if _, is := err.(*Unsatisfiable); !is {
		t.Fatalf("got %T: %v", err, err)
	}
}
