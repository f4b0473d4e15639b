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

package tools

import (
	"fmt"
	"io"
	"strings"

	"github.com/Comcast/packmule/graph"
)

type MermaidOpts struct {
	// ShowSpecs will include a node's requested spec (if any) in
	// its label.
	ShowSpecs bool `json:"showSpecs"`

	// AnchorFill is the fill color for nodes that satisfy a
	// requested spec.
	AnchorFill string `json:"anchorFill,omitempty"`
}

// Mermaid makes a Mermaid (https://mermaidjs.github.io/) input file
// for the given graph.  Edges run from a dependency down to its
// dependents, so the top of the chart installs first.
func Mermaid(g *graph.PrefixGraph, w io.Writer, opts *MermaidOpts) error {
	if opts == nil {
		opts = &MermaidOpts{
			ShowSpecs:  true,
			AnchorFill: "#bcf2db",
		}
	}

	fmt.Fprintf(w, "graph TB\n")

	nids := make(map[string]string)
	num := 0

	node := func(rec string, label string, anchored bool) string {
		if nid, already := nids[rec]; already {
			return nid
		}
		num++
		nid := fmt.Sprintf("n%d", num)
		nids[rec] = nid

		if anchored {
			fmt.Fprintf(w, "  %s[\"%s\"]\n", nid, label)
			if opts.AnchorFill != "" {
				fmt.Fprintf(w, "  style %s fill:%s\n", nid, opts.AnchorFill)
			}
		} else {
			fmt.Fprintf(w, "  %s(\"%s\")\n", nid, label)
		}
		return nid
	}

	for _, rec := range g.Records() {
		specs := g.SpecMatches(rec)

		label := rec.Name + " " + rec.Version
		if opts.ShowSpecs && 0 < len(specs) {
			spec := strings.Replace(specs[0].String(), `"`, `'`, -1)
			label += "<br/>" + spec
		}
		node(rec.Key(), label, 0 < len(specs))
	}

	for _, rec := range g.Records() {
		nid := nids[rec.Key()]
		for _, child := range g.Children(rec) {
			fmt.Fprintf(w, "  %s --> %s\n", nid, nids[child.Key()])
		}
	}

	fmt.Fprintf(w, "\n")

	return nil
}
