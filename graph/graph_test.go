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

package graph

import (
	"testing"

	"github.com/Comcast/packmule/matchspec"
	"github.com/Comcast/packmule/record"
)

func rec(name, version string, depends ...string) *record.Package {
	return &record.Package{
		Name:    name,
		Version: version,
		Build:   "0",
		Depends: depends,
	}
}

func mustSpec(t *testing.T, s string) *matchspec.MatchSpec {
	t.Helper()
	spec, err := matchspec.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return spec
}

func mustGraph(t *testing.T, records []*record.Package, specs ...*matchspec.MatchSpec) *PrefixGraph {
	t.Helper()
	g, err := New(records, specs)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func names(records []*record.Package) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

func indexOf(t *testing.T, order []string, name string) int {
	t.Helper()
	for i, n := range order {
		if n == name {
			return i
		}
	}
	t.Fatalf("%q not in %v", name, order)
	return -1
}

// flaskEnv is the little environment most tests run against.
func flaskEnv() []*record.Package {
	return []*record.Package{
		rec("flask", "1.0.2", "python >=3.6", "werkzeug >=0.14", "click >=5.1"),
		rec("python", "3.7.0"),
		rec("werkzeug", "0.14.1", "python >=3.6"),
		rec("click", "6.7", "python >=3.6"),
		rec("six", "1.11.0"),
	}
}

func TestToposortOrder(t *testing.T) {
	g := mustGraph(t, flaskEnv())
	order := names(g.Records())

	if len(order) != 5 {
		t.Fatalf("got %v", order)
	}
	python := indexOf(t, order, "python")
	for _, dependent := range []string{"flask", "werkzeug", "click"} {
		if python > indexOf(t, order, dependent) {
			t.Errorf("python after %s in %v", dependent, order)
		}
	}
	if indexOf(t, order, "werkzeug") > indexOf(t, order, "flask") {
		t.Errorf("werkzeug after flask in %v", order)
	}
	if indexOf(t, order, "click") > indexOf(t, order, "flask") {
		t.Errorf("click after flask in %v", order)
	}
}

func TestToposortAlphabeticalWithinRound(t *testing.T) {
	g := mustGraph(t, []*record.Package{
		rec("zlib", "1.2"),
		rec("bzip2", "1.0"),
		rec("ncurses", "6.1"),
	})
	order := names(g.Records())
	want := []string{"bzip2", "ncurses", "zlib"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, wanted %v", order, want)
		}
	}
}

func TestToposortIsStableAcrossMutations(t *testing.T) {
	g := mustGraph(t, flaskEnv())
	before := names(g.Records())
	g.RemoveSpec(mustSpec(t, "nonexistent"))
	after := names(g.Records())
	if len(before) != len(after) {
		t.Fatalf("%v != %v", before, after)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("%v != %v", before, after)
		}
	}
}

func TestPythonPipCycleIsBroken(t *testing.T) {
	records := []*record.Package{
		rec("python", "3.7.0", "pip"),
		rec("pip", "10.0.1", "python >=3.6"),
	}
	g, err := NewWithOptions(records, nil, Options{AllowCycles: false, Platform: "linux"})
	if err != nil {
		t.Fatalf("python/pip should not count as a cycle: %v", err)
	}
	order := names(g.Records())
	if order[0] != "python" || order[1] != "pip" {
		t.Errorf("order = %v", order)
	}
}

func TestCycleStrict(t *testing.T) {
	records := []*record.Package{
		rec("a", "1.0", "b"),
		rec("b", "1.0", "a"),
	}
	_, err := NewWithOptions(records, nil, Options{AllowCycles: false, Platform: "linux"})
	if err == nil {
		t.Fatal("wanted a CyclicalDependencyError")
	}
	cderr, ok := err.(*CyclicalDependencyError)
	if !ok {
		t.Fatalf("got %T: %v", err, err)
	}
	if len(cderr.Nodes) != 2 {
		t.Errorf("Nodes = %v", names(cderr.Nodes))
	}
}

func TestCycleTolerated(t *testing.T) {
	records := []*record.Package{
		rec("b", "1.0", "a"),
		rec("a", "1.0", "b"),
		rec("standalone", "1.0"),
	}
	g, err := NewWithOptions(records, nil, Options{AllowCycles: true, Platform: "linux"})
	if err != nil {
		t.Fatal(err)
	}
	order := names(g.Records())
	// the disconnected node first, then the cycle is broken
	// alphabetically
	want := []string{"standalone", "a", "b"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, wanted %v", order, want)
		}
	}
}

func TestSelfDependencyTolerated(t *testing.T) {
	records := []*record.Package{
		rec("selfish", "1.0", "selfish"),
	}
	g, err := New(records, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := names(g.Records()); len(got) != 1 || got[0] != "selfish" {
		t.Errorf("order = %v", got)
	}
}

func TestRemoveSpecClosure(t *testing.T) {
	g := mustGraph(t, flaskEnv())
	removed := g.RemoveSpec(mustSpec(t, "werkzeug"))

	got := names(removed)
	if len(got) != 2 || got[0] != "werkzeug" || got[1] != "flask" {
		t.Errorf("removed = %v", got)
	}
	left := names(g.Records())
	if len(left) != 3 {
		t.Errorf("left = %v", left)
	}
	for _, name := range left {
		if name == "flask" || name == "werkzeug" {
			t.Errorf("still present: %v", left)
		}
	}
}

func TestRemoveSpecRoot(t *testing.T) {
	g := mustGraph(t, flaskEnv())
	removed := g.RemoveSpec(mustSpec(t, "python"))
	// everything that transitively depends on python goes with it
	if len(removed) != 4 {
		t.Errorf("removed = %v", names(removed))
	}
	if left := names(g.Records()); len(left) != 1 || left[0] != "six" {
		t.Errorf("left = %v", left)
	}
}

func TestRemoveSpecTrackFeatures(t *testing.T) {
	records := []*record.Package{
		rec("mkl", "2018.0"),
		rec("blas", "1.0"),
		rec("numpy", "1.14", "blas"),
	}
	records[0].TrackFeatures = "mkl"
	records[1].Features = "mkl"

	g := mustGraph(t, records)
	removed := g.RemoveSpec(mustSpec(t, "mkl@"))

	got := map[string]bool{}
	for _, r := range removed {
		got[r.Name] = true
	}
	// the track_features owner, the feature carrier, and the
	// carrier's dependents
	for _, want := range []string{"mkl", "blas", "numpy"} {
		if !got[want] {
			t.Errorf("wanted %s removed; removed %v", want, names(removed))
		}
	}
}

func TestPrune(t *testing.T) {
	g := mustGraph(t, flaskEnv(), mustSpec(t, "flask"))
	removed := g.Prune()

	if len(removed) != 1 || removed[0].Name != "six" {
		t.Errorf("removed = %v", names(removed))
	}
	if g.Len() != 4 {
		t.Errorf("left = %v", names(g.Records()))
	}
}

func TestPruneFixedPoint(t *testing.T) {
	// with no anchors at all, pruning iterates down to nothing
	g := mustGraph(t, flaskEnv())
	removed := g.Prune()
	if len(removed) != 5 || g.Len() != 0 {
		t.Errorf("removed = %v, left = %v", names(removed), names(g.Records()))
	}
}

func TestRemoveYoungestDescendantNodesWithSpecs(t *testing.T) {
	g := mustGraph(t, flaskEnv(), mustSpec(t, "flask"), mustSpec(t, "six"))
	removed := g.RemoveYoungestDescendantNodesWithSpecs()

	got := map[string]bool{}
	for _, r := range removed {
		got[r.Name] = true
	}
	if len(removed) != 2 || !got["flask"] || !got["six"] {
		t.Errorf("removed = %v", names(removed))
	}

	// the dependencies of the requested specs remain
	rest := g.Prune()
	if g.Len() != 0 {
		t.Errorf("left = %v", names(g.Records()))
	}
	if len(rest) != 3 {
		t.Errorf("pruned = %v", names(rest))
	}
}

func TestRemoveYoungestKeepsAnchoredNonLeaves(t *testing.T) {
	// an anchored node with children is not removed
	g := mustGraph(t, flaskEnv(), mustSpec(t, "python"))
	removed := g.RemoveYoungestDescendantNodesWithSpecs()
	if len(removed) != 0 {
		t.Errorf("removed = %v", names(removed))
	}
}

func TestAllDescendantsAndAncestors(t *testing.T) {
	g := mustGraph(t, flaskEnv())
	python, err := g.GetNodeByName("python")
	if err != nil {
		t.Fatal(err)
	}

	descendants, err := g.AllDescendants(python)
	if err != nil {
		t.Fatal(err)
	}
	if len(descendants) != 3 {
		t.Errorf("descendants = %v", names(descendants))
	}

	flask, err := g.GetNodeByName("flask")
	if err != nil {
		t.Fatal(err)
	}
	ancestors, err := g.AllAncestors(flask)
	if err != nil {
		t.Fatal(err)
	}
	if len(ancestors) != 3 {
		t.Errorf("ancestors = %v", names(ancestors))
	}
	// results come back in graph order, parents first
	if ancestors[0].Name != "python" {
		t.Errorf("ancestors = %v", names(ancestors))
	}

	if _, err := g.AllDescendants(rec("ghost", "0.0")); err == nil {
		t.Errorf("wanted NodeNotFound")
	}
}

func TestGetNodeByNameMiss(t *testing.T) {
	g := mustGraph(t, flaskEnv())
	_, err := g.GetNodeByName("ghost")
	if _, ok := err.(*NodeNotFound); !ok {
		t.Errorf("got %T: %v", err, err)
	}
}

func TestSpecMatches(t *testing.T) {
	spec := mustSpec(t, "flask")
	g := mustGraph(t, flaskEnv(), spec)
	flask, err := g.GetNodeByName("flask")
	if err != nil {
		t.Fatal(err)
	}
	matches := g.SpecMatches(flask)
	if len(matches) != 1 || matches[0] != spec {
		t.Errorf("SpecMatches = %v", matches)
	}
	python, _ := g.GetNodeByName("python")
	if len(g.SpecMatches(python)) != 0 {
		t.Errorf("python should have no anchors")
	}
}

func TestWindowsMenuinstOrdering(t *testing.T) {
	records := []*record.Package{
		rec("app", "1.0", "python"),
		rec("menuinst", "1.4", "python"),
		rec("python", "3.7.0"),
	}
	g, err := NewWithOptions(records, nil, Options{AllowCycles: true, Platform: "windows"})
	if err != nil {
		t.Fatal(err)
	}
	order := names(g.Records())
	if indexOf(t, order, "menuinst") > indexOf(t, order, "app") {
		t.Errorf("menuinst after app in %v", order)
	}

	// off windows, no extra edge: app and menuinst sort
	// alphabetically in the same round
	g, err = NewWithOptions(records, nil, Options{AllowCycles: true, Platform: "linux"})
	if err != nil {
		t.Fatal(err)
	}
	order = names(g.Records())
	if indexOf(t, order, "app") > indexOf(t, order, "menuinst") {
		t.Errorf("order = %v", order)
	}
}

func TestWindowsNoarchPythonCondaOrdering(t *testing.T) {
	app := rec("app", "1.0", "python")
	app.NoArch = "python"
	records := []*record.Package{
		app,
		rec("conda", "4.5.0", "python"),
		rec("python", "3.7.0"),
	}
	g, err := NewWithOptions(records, nil, Options{AllowCycles: true, Platform: "windows"})
	if err != nil {
		t.Fatal(err)
	}
	order := names(g.Records())
	if indexOf(t, order, "conda") > indexOf(t, order, "app") {
		t.Errorf("conda after noarch app in %v", order)
	}
}

func TestDuplicateRecordsCollapse(t *testing.T) {
	a := rec("python", "3.7.0")
	b := rec("python", "3.7.0")
	g := mustGraph(t, []*record.Package{a, b})
	if g.Len() != 1 {
		t.Errorf("got %d nodes", g.Len())
	}
}
