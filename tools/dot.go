package tools

// dot -Tpng g.dot > g.png

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/Comcast/packmule/graph"
)

// Dot writes a Graphviz dot rendering of the graph.
//
// Orphans are boxes, roots are invhouses, leaves are houses, and
// everything else is an ellipse.  A node that satisfies a requested
// spec gets the spec in its label, with a leading "?" when the spec
// is optional.  Edges run from dependent up to dependency, so with
// rankdir=BT the roots end up on top.
func Dot(g *graph.PrefixGraph, w io.Writer, title string) error {
	fmt.Fprintf(w, "digraph g {\n")
	if title != "" {
		fmt.Fprintf(w, "  labelloc=\"t\";\n")
		fmt.Fprintf(w, "  label=\"%s\";\n", escape(title))
	}
	fmt.Fprintf(w, "  rankdir=BT;\n")

	for _, node := range g.Records() {
		var (
			parents  = g.Parents(node)
			children = g.Children(node)
		)

		label := node.Name + " " + node.Version
		if specs := g.SpecMatches(node); 0 < len(specs) {
			spec := specs[0]
			if spec.Optional() {
				label += "\\n?" + spec.String()
			} else {
				label += "\\n" + spec.String()
			}
		}

		var shape string
		switch {
		case len(parents) == 0 && len(children) == 0:
			shape = "box"
		case len(parents) == 0:
			shape = "invhouse"
		case len(children) == 0:
			shape = "house"
		default:
			shape = "ellipse"
		}

		fmt.Fprintf(w, "  \"%s\" [label=\"%s\", shape=%s];\n",
			escape(node.Name), escape(label), shape)
		for _, child := range children {
			fmt.Fprintf(w, "    \"%s\" -> \"%s\";\n",
				escape(child.Name), escape(node.Name))
		}
	}

	fmt.Fprintf(w, "}\n")
	return nil
}

// PNG generates a PNG image based on output from Dot.
//
// This function will write two files: basename.dot and basename.png,
// where the basename is the given string.
func PNG(g *graph.PrefixGraph, basename, title string) (string, error) {
	dotname := basename + ".dot"
	pngname := basename + ".png"

	dotfile, err := os.Create(dotname)
	if err != nil {
		return pngname, err
	}
	if err := Dot(g, dotfile, title); err != nil {
		dotfile.Close()
		return pngname, err
	}
	if err = dotfile.Close(); err != nil {
		return pngname, err
	}
	cmd := "dot -Tpng " + dotname + " > " + pngname
	if err := exec.Command("bash", "-c", cmd).Run(); err != nil {
		return pngname, err
	}
	return pngname, nil
}

func escape(s string) string {
	return strings.Replace(s, `"`, `\"`, -1)
}
