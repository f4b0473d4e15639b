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

// Package graph maintains a dependency graph over the package
// records of a prefix.
//
// Edge direction is parents and children: if A depends on B, then B
// is a parent of A.  The node collection is kept in topological
// order (parents first) across construction and every mutation, so
// Records always comes back in a valid install order.
package graph

import (
	"runtime"
	"sort"
	"strings"

	"github.com/Comcast/packmule/matchspec"
	"github.com/Comcast/packmule/record"
)

// NodeNotFound occurs when a graph operation names a node that isn't
// in the graph.
type NodeNotFound struct {
	Name string
}

func (e *NodeNotFound) Error() string {
	return `node '` + e.Name + `' not found in graph`
}

// CyclicalDependencyError occurs when cycles are not tolerated and
// the graph has one.  Nodes are the records still entangled in
// cycles.
type CyclicalDependencyError struct {
	Nodes []*record.Package
}

func (e *CyclicalDependencyError) Error() string {
	names := make([]string, len(e.Nodes))
	for i, n := range e.Nodes {
		names[i] = n.Name
	}
	return "cyclic dependencies exist among these items: " + strings.Join(names, ", ")
}

// Options configures graph construction.
type Options struct {
	// AllowCycles switches to a deterministic cycle-breaking sort
	// instead of failing on cyclic dependencies.
	AllowCycles bool

	// Platform drives the platform-specific ordering policy
	// (menuinst and noarch-python handling on "windows").
	Platform string
}

// DefaultOptions tolerates cycles and takes the running platform.
func DefaultOptions() Options {
	return Options{AllowCycles: true, Platform: runtime.GOOS}
}

// PrefixGraph is a directed graph over prefix records, used for
// sorting packages and for the mutations that removal and
// installation workflows need.
//
// Most public methods mutate the graph.
type PrefixGraph struct {
	opts Options

	// nodes holds the topological order.  parents maps a node key
	// to its required-parent keys.
	nodes   []*record.Package
	byKey   map[string]*record.Package
	parents map[string]map[string]bool

	// specMatches maps a node key to the anchor specs it
	// satisfies.
	specMatches map[string][]*matchspec.MatchSpec
}

// New builds a graph with DefaultOptions.
func New(records []*record.Package, specs []*matchspec.MatchSpec) (*PrefixGraph, error) {
	return NewWithOptions(records, specs, DefaultOptions())
}

// NewWithOptions builds a graph from records, with anchor specs that
// pin packages as required.  Each record's parents are the records
// matched by its depends specs.
func NewWithOptions(records []*record.Package, specs []*matchspec.MatchSpec, opts Options) (*PrefixGraph, error) {
	g := &PrefixGraph{
		opts:        opts,
		nodes:       make([]*record.Package, 0, len(records)),
		byKey:       make(map[string]*record.Package, len(records)),
		parents:     make(map[string]map[string]bool, len(records)),
		specMatches: map[string][]*matchspec.MatchSpec{},
	}

	for _, node := range records {
		key := node.Key()
		if _, have := g.byKey[key]; have {
			// duplicates by identity carry no information
			continue
		}
		g.byKey[key] = node
		g.nodes = append(g.nodes, node)
	}

	for _, node := range g.nodes {
		parentSpecs := make([]*matchspec.MatchSpec, 0, len(node.Depends))
		for _, dep := range node.Depends {
			spec, err := matchspec.Parse(dep)
			if err != nil {
				return nil, err
			}
			parentSpecs = append(parentSpecs, spec)
		}

		parentSet := map[string]bool{}
		for _, other := range g.nodes {
			for _, spec := range parentSpecs {
				if spec.Match(other) {
					parentSet[other.Key()] = true
					break
				}
			}
		}
		g.parents[node.Key()] = parentSet

		for _, spec := range specs {
			if spec.Match(node) {
				g.specMatches[node.Key()] = append(g.specMatches[node.Key()], spec)
			}
		}
	}

	if err := g.toposort(); err != nil {
		return nil, err
	}
	return g, nil
}

// Records returns the records in topological order.
func (g *PrefixGraph) Records() []*record.Package {
	out := make([]*record.Package, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Len returns the node count.
func (g *PrefixGraph) Len() int {
	return len(g.nodes)
}

// SpecMatches returns the anchor specs the node satisfies.
func (g *PrefixGraph) SpecMatches(node *record.Package) []*matchspec.MatchSpec {
	return g.specMatches[node.Key()]
}

// Parents returns the node's direct dependencies, in graph order.
func (g *PrefixGraph) Parents(node *record.Package) []*record.Package {
	return g.inOrder(g.parents[node.Key()])
}

// Children returns the nodes that directly depend on node, in graph
// order.
func (g *PrefixGraph) Children(node *record.Package) []*record.Package {
	return g.inOrder(g.invert()[node.Key()])
}

// GetNodeByName returns the first record with the given package
// name.
func (g *PrefixGraph) GetNodeByName(name string) (*record.Package, error) {
	for _, node := range g.nodes {
		if node.Name == name {
			return node, nil
		}
	}
	return nil, &NodeNotFound{name}
}

// invert computes child edges from the parent edges.
func (g *PrefixGraph) invert() map[string]map[string]bool {
	children := make(map[string]map[string]bool, len(g.nodes))
	for _, node := range g.nodes {
		children[node.Key()] = map[string]bool{}
	}
	for child, parentSet := range g.parents {
		for parent := range parentSet {
			children[parent][child] = true
		}
	}
	return children
}

// inOrder filters the graph's node order down to a key set.
func (g *PrefixGraph) inOrder(keys map[string]bool) []*record.Package {
	out := make([]*record.Package, 0, len(keys))
	for _, node := range g.nodes {
		if keys[node.Key()] {
			out = append(out, node)
		}
	}
	return out
}

// AllDescendants returns every node that transitively depends on
// node, in graph order.
func (g *PrefixGraph) AllDescendants(node *record.Package) ([]*record.Package, error) {
	if _, have := g.byKey[node.Key()]; !have {
		return nil, &NodeNotFound{node.Name}
	}
	children := g.invert()

	queue := []string{node.Key()}
	seen := map[string]bool{}
	for q := 0; q < len(queue); q++ {
		for child := range children[queue[q]] {
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
	return g.inOrder(seen), nil
}

// AllAncestors returns every node that node transitively depends on,
// in graph order.
func (g *PrefixGraph) AllAncestors(node *record.Package) ([]*record.Package, error) {
	if _, have := g.byKey[node.Key()]; !have {
		return nil, &NodeNotFound{node.Name}
	}

	queue := []string{node.Key()}
	seen := map[string]bool{}
	for q := 0; q < len(queue); q++ {
		for parent := range g.parents[queue[q]] {
			if !seen[parent] {
				seen[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	return g.inOrder(seen), nil
}

// RemoveSpec removes all nodes matching the spec, along with every
// node that transitively depends on one.  A track_features spec also
// sweeps up packages carrying a matching feature.  The removed nodes
// come back in their pre-removal graph order.
func (g *PrefixGraph) RemoveSpec(spec *matchspec.MatchSpec) []*record.Package {
	matched := map[string]bool{}
	for _, node := range g.nodes {
		if spec.Match(node) {
			matched[node.Key()] = true
		}
	}

	if raw, have := spec.GetRawValue("track_features"); have {
		for _, feature := range strings.Fields(raw) {
			surrogate, err := matchspec.New(map[string]string{"features": feature})
			if err != nil {
				continue
			}
			for _, node := range g.nodes {
				if surrogate.Match(node) {
					matched[node.Key()] = true
				}
			}
		}
	}

	removeThese := map[string]bool{}
	for key := range matched {
		removeThese[key] = true
		descendants, _ := g.AllDescendants(g.byKey[key])
		for _, d := range descendants {
			removeThese[d.Key()] = true
		}
	}

	removed := g.inOrder(removeThese)
	for _, node := range removed {
		g.removeNode(node.Key())
	}
	g.mustToposort()
	return removed
}

// RemoveYoungestDescendantNodesWithSpecs removes, in a single pass,
// every childless node that an anchor spec matches.  Used to
// determine only the dependencies of requested specs.
func (g *PrefixGraph) RemoveYoungestDescendantNodesWithSpecs() []*record.Package {
	children := g.invert()

	youngest := map[string]bool{}
	for _, node := range g.nodes {
		key := node.Key()
		if len(children[key]) == 0 {
			if _, anchored := g.specMatches[key]; anchored {
				youngest[key] = true
			}
		}
	}

	removed := g.inOrder(youngest)
	for _, node := range removed {
		g.removeNode(node.Key())
	}
	g.mustToposort()
	return removed
}

// Prune removes packages until every leaf is anchored by a spec,
// iterating to a fixed point.  The pruned nodes come back in their
// pre-removal graph order.
func (g *PrefixGraph) Prune() []*record.Package {
	originalOrder := g.Records()

	removedSet := map[string]bool{}
	for {
		children := g.invert()
		var prunable []string
		for _, node := range g.nodes {
			key := node.Key()
			if len(children[key]) != 0 {
				continue
			}
			if _, anchored := g.specMatches[key]; anchored {
				continue
			}
			prunable = append(prunable, key)
		}
		if len(prunable) == 0 {
			break
		}
		for _, key := range prunable {
			removedSet[key] = true
			g.removeNode(key)
		}
	}

	removed := make([]*record.Package, 0, len(removedSet))
	for _, node := range originalOrder {
		if removedSet[node.Key()] {
			removed = append(removed, node)
		}
	}
	g.mustToposort()
	return removed
}

// removeNode removes the node and every edge referencing it.
func (g *PrefixGraph) removeNode(key string) {
	if _, have := g.byKey[key]; !have {
		panic("graph: removing nonexistent node " + key)
	}
	delete(g.byKey, key)
	delete(g.parents, key)
	delete(g.specMatches, key)
	for _, parentSet := range g.parents {
		delete(parentSet, key)
	}
	for i, node := range g.nodes {
		if node.Key() == key {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			break
		}
	}
}

// mustToposort re-sorts after a mutation.  Removing nodes from an
// acyclic graph cannot introduce a cycle, so with cycles disallowed
// the graph was already known to be acyclic at construction.
func (g *PrefixGraph) mustToposort() {
	if err := g.toposort(); err != nil {
		panic("graph: " + err.Error())
	}
}

func (g *PrefixGraph) toposort() error {
	work := g.newWorkGraph()
	work.prepare(g.opts.Platform)

	var (
		order []string
		err   error
	)
	if g.opts.AllowCycles {
		order = work.sortHandleCycles()
	} else {
		if order, err = work.sortStrict(); err != nil {
			return err
		}
	}

	sorted := make([]*record.Package, 0, len(order))
	for _, key := range order {
		sorted = append(sorted, g.byKey[key])
	}
	g.nodes = sorted
	return nil
}

// workGraph is the scratch copy of the graph that toposort consumes.
type workGraph struct {
	keys    []string
	present map[string]bool
	parents map[string]map[string]bool
	name    map[string]string
	noarch  map[string]bool
	records map[string]*record.Package
}

func (g *PrefixGraph) newWorkGraph() *workGraph {
	w := &workGraph{
		present: make(map[string]bool, len(g.nodes)),
		parents: make(map[string]map[string]bool, len(g.nodes)),
		name:    make(map[string]string, len(g.nodes)),
		noarch:  make(map[string]bool, len(g.nodes)),
		records: make(map[string]*record.Package, len(g.nodes)),
	}
	for _, node := range g.nodes {
		key := node.Key()
		w.keys = append(w.keys, key)
		w.present[key] = true
		w.name[key] = node.Name
		w.noarch[key] = node.IsNoArchPython()
		w.records[key] = node
		parentSet := make(map[string]bool, len(g.parents[key]))
		for parent := range g.parents[key] {
			parentSet[parent] = true
		}
		w.parents[key] = parentSet
	}
	return w
}

func (w *workGraph) findByName(name string) (string, bool) {
	for _, key := range w.keys {
		if w.present[key] && w.name[key] == name {
			return key, true
		}
	}
	return "", false
}

// prepare applies the edge-injection policy that runs before
// sorting.
func (w *workGraph) prepare(platform string) {
	// Break the intentional circular dependency between python and
	// pip that the add-pip-as-python-dependency convention
	// introduces.
	for _, key := range w.keys {
		if w.name[key] != "python" {
			continue
		}
		for parent := range w.parents[key] {
			if w.name[parent] == "pip" {
				delete(w.parents[key], parent)
			}
		}
	}

	if platform != "windows" {
		return
	}

	// On Windows, menuinst must link first and unlink last so that
	// python-dependent packages can import it to manage shortcuts.
	menuinstKey, haveMenuinst := w.findByName("menuinst")
	pythonKey, havePython := w.findByName("python")
	if haveMenuinst && havePython {
		menuinstParents := w.parents[menuinstKey]
		for _, key := range w.keys {
			if w.parents[key][pythonKey] && !menuinstParents[key] {
				w.parents[key][menuinstKey] = true
			}
		}
	}

	// Noarch python packages use conda's own entry point binary, so
	// if conda is present it has to be ordered around them safely.
	condaKey, haveConda := w.findByName("conda")
	if haveConda {
		condaParents := w.parents[condaKey]
		for _, key := range w.keys {
			if w.noarch[key] && !condaParents[key] {
				w.parents[key][condaKey] = true
			}
		}
	}
}

func (w *workGraph) remaining() []string {
	var keys []string
	for _, key := range w.keys {
		if w.present[key] {
			keys = append(keys, key)
		}
	}
	return keys
}

func (w *workGraph) pop(key string) {
	w.present[key] = false
	delete(w.parents, key)
	for _, parentSet := range w.parents {
		delete(parentSet, key)
	}
}

// kahnRounds emits no-parent nodes, alphabetically by name within
// each round, until the graph is empty or only cycles remain.
func (w *workGraph) kahnRounds() []string {
	var order []string
	for {
		var round []string
		for _, key := range w.remaining() {
			if len(w.parents[key]) == 0 {
				round = append(round, key)
			}
		}
		if len(round) == 0 {
			return order
		}
		sort.SliceStable(round, func(i, j int) bool {
			return w.name[round[i]] < w.name[round[j]]
		})
		for _, key := range round {
			order = append(order, key)
			w.pop(key)
		}
	}
}

// sortStrict fails with CyclicalDependencyError if any nodes remain
// after Kahn's algorithm stalls.
func (w *workGraph) sortStrict() ([]string, error) {
	order := w.kahnRounds()
	if left := w.remaining(); len(left) > 0 {
		nodes := make([]*record.Package, 0, len(left))
		for _, key := range left {
			nodes = append(nodes, w.records[key])
		}
		return nil, &CyclicalDependencyError{nodes}
	}
	return order, nil
}

// sortHandleCycles produces a total order even in the presence of
// cycles: self-edges are dropped, fully disconnected nodes go first
// alphabetically, and whenever the sort stalls on a cycle, the node
// with the fewest parents (ties broken by name) is forced out.
func (w *workGraph) sortHandleCycles() []string {
	for key, parentSet := range w.parents {
		delete(parentSet, key)
	}

	isParent := map[string]bool{}
	for _, parentSet := range w.parents {
		for parent := range parentSet {
			isParent[parent] = true
		}
	}
	var disconnected []string
	for _, key := range w.remaining() {
		if len(w.parents[key]) == 0 && !isParent[key] {
			disconnected = append(disconnected, key)
		}
	}
	sort.SliceStable(disconnected, func(i, j int) bool {
		return w.name[disconnected[i]] < w.name[disconnected[j]]
	})
	order := disconnected
	for _, key := range disconnected {
		w.pop(key)
	}

	for {
		order = append(order, w.kahnRounds()...)
		left := w.remaining()
		if len(left) == 0 {
			return order
		}
		order = append(order, w.popFewestParents(left))
	}
}

// popFewestParents forces out the remaining node with the fewest
// parents, ties broken by alphabetical name.
func (w *workGraph) popFewestParents(remaining []string) string {
	best := remaining[0]
	for _, key := range remaining[1:] {
		nb, nk := len(w.parents[best]), len(w.parents[key])
		if nk < nb || (nk == nb && w.name[key] < w.name[best]) {
			best = key
		}
	}
	w.pop(best)
	return best
}
