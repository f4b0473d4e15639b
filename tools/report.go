package tools

import (
	"fmt"
	"io"
	"strings"

	"github.com/Comcast/packmule/graph"

	md "github.com/russross/blackfriday/v2"
)

// ReportMarkdown writes a markdown summary of a prefix: what's
// installed, in dependency order, with each package's direct
// dependencies and the requested spec (if any) that anchors it.
func ReportMarkdown(g *graph.PrefixGraph, w io.Writer, title string) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(w, format+"\n", args...)
	}

	if title == "" {
		title = "Prefix report"
	}
	f("# %s", title)
	f("")
	f("%d packages in dependency order.", g.Len())
	f("")

	for _, node := range g.Records() {
		f("## %s %s", node.Name, node.Version)
		f("")
		if node.Channel != "" {
			f("Channel: `%s`", node.Channel)
		}
		if node.Build != "" {
			f("Build: `%s`", node.Build)
		}
		if specs := g.SpecMatches(node); 0 < len(specs) {
			strs := make([]string, len(specs))
			for i, spec := range specs {
				strs[i] = "`" + spec.String() + "`"
			}
			f("Requested by %s.", strings.Join(strs, ", "))
		}
		if parents := g.Parents(node); 0 < len(parents) {
			f("")
			f("Depends on:")
			f("")
			for _, parent := range parents {
				f("- [%s](#%s)", parent.Name, anchor(parent.Name))
			}
		}
		f("")
	}

	return nil
}

// RenderReportHTML renders the markdown report as an HTML fragment.
func RenderReportHTML(g *graph.PrefixGraph, w io.Writer, title string) error {
	var b strings.Builder
	if err := ReportMarkdown(g, &b, title); err != nil {
		return err
	}
	_, err := w.Write(md.Run([]byte(b.String())))
	return err
}

// RenderReportPage renders a complete HTML page for the prefix.
func RenderReportPage(g *graph.PrefixGraph, w io.Writer, title string, cssFiles []string) error {
	if title == "" {
		title = "Prefix report"
	}

	fmt.Fprintf(w, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, title)

	for _, cssFile := range cssFiles {
		fmt.Fprintf(w, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(w, `
  </head>
  <body>
`)

	if err := RenderReportHTML(g, w, title); err != nil {
		return err
	}

	fmt.Fprintf(w, `
  </body>
</html>
`)

	return nil
}

// anchor approximates the heading anchors markdown renderers
// generate.
func anchor(name string) string {
	return strings.ToLower(strings.Replace(name, " ", "-", -1))
}
