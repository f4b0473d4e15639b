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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Comcast/packmule/record"
)

func testRecords() []*record.Package {
	return []*record.Package{
		{Name: "flask", Version: "1.0.2", Build: "0",
			Depends: []string{"python >=3.6", "werkzeug >=0.14", "click >=5.1"}},
		{Name: "python", Version: "3.7.0", Build: "0"},
		{Name: "werkzeug", Version: "0.14.1", Build: "0", Depends: []string{"python >=3.6"}},
		{Name: "click", Version: "6.7", Build: "0", Depends: []string{"python >=3.6"}},
		{Name: "six", Version: "1.11.0", Build: "0"},
	}
}

func load(t *testing.T, s *Service, specs ...string) {
	t.Helper()
	op := &Op{
		Load: &LoadOp{
			Records: testRecords(),
			Specs:   specs,
		},
	}
	if err := op.Do(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if op.Load.Count != 5 {
		t.Fatalf("Count = %d", op.Load.Count)
	}
}

func TestOpRecords(t *testing.T) {
	s := NewService()
	load(t, s)

	op := &Op{Records: &RecordsOp{}}
	if err := op.Do(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	recs := op.Records.Records
	if len(recs) != 5 {
		t.Fatalf("got %d records", len(recs))
	}
	// dependency order: python before flask
	seen := map[string]int{}
	for i, rec := range recs {
		seen[rec.Name] = i
	}
	if seen["python"] > seen["flask"] {
		t.Errorf("order: %v", seen)
	}
}

func TestOpRemove(t *testing.T) {
	s := NewService()
	load(t, s)

	op := &Op{Remove: &RemoveOp{Spec: "werkzeug"}}
	if err := op.Do(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if len(op.Remove.Removed) != 2 {
		t.Fatalf("Removed = %v", op.Remove.Removed)
	}

	after := &Op{Records: &RecordsOp{}}
	if err := after.Do(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if len(after.Records.Records) != 3 {
		t.Errorf("got %d records", len(after.Records.Records))
	}
}

func TestOpPrune(t *testing.T) {
	s := NewService()
	load(t, s, "flask")

	op := &Op{Prune: &PruneOp{}}
	if err := op.Do(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if len(op.Prune.Removed) != 1 || op.Prune.Removed[0].Name != "six" {
		t.Errorf("Removed = %v", op.Prune.Removed)
	}
}

func TestOpMatch(t *testing.T) {
	s := NewService()
	load(t, s)

	op := &Op{Match: &MatchOp{Spec: "python >=3.6"}}
	if err := op.Do(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if len(op.Match.Matches) != 1 || op.Match.Matches[0].Name != "python" {
		t.Errorf("Matches = %v", op.Match.Matches)
	}

	bad := &Op{Match: &MatchOp{Spec: "numpy=="}}
	if err := bad.Do(context.Background(), s); err == nil {
		t.Error("wanted a parse error")
	}
	if bad.Err == "" {
		t.Error("wanted Err to be set")
	}
}

func TestOpSolve(t *testing.T) {
	s := NewService()
	load(t, s)

	op := &Op{Solve: &SolveOp{Specs: []string{"flask"}}}
	if err := op.Do(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if len(op.Solve.Records) != 4 {
		t.Errorf("Records = %v", op.Solve.Records)
	}

	scripted := &Op{Solve: &SolveOp{
		Specs: []string{"six"},
		Src: `
for (var i = 0; i < _.records.length; i++) {
	if (_.match(_.specs[0], _.records[i])) {
		_.out(_.records[i]);
	}
}
`,
	}}
	if err := scripted.Do(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if len(scripted.Solve.Records) != 1 || scripted.Solve.Records[0].Name != "six" {
		t.Errorf("Records = %v", scripted.Solve.Records)
	}
}

func TestOpFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"six","version":"1.11.0","build":"0"}]`))
	}))
	defer server.Close()

	s := NewService()
	op := &Op{Fetch: &FetchOp{URL: server.URL}}
	if err := op.Do(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if op.Fetch.Count != 1 {
		t.Fatalf("Count = %d", op.Fetch.Count)
	}

	check := &Op{Records: &RecordsOp{}}
	if err := check.Do(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if len(check.Records.Records) != 1 || check.Records.Records[0].Name != "six" {
		t.Errorf("Records = %v", check.Records.Records)
	}
}

func TestOpEmpty(t *testing.T) {
	s := NewService()
	op := &Op{}
	if err := op.Do(context.Background(), s); err == nil {
		t.Error("wanted an error")
	}
}
