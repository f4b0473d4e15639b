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

// Package main is a command-line prefix debugger in the spirit of gdb.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"regexp"
	"strings"

	"github.com/Comcast/packmule/graph"
	"github.com/Comcast/packmule/matchspec"
	"github.com/Comcast/packmule/record"
	"github.com/Comcast/packmule/solver"
	"github.com/Comcast/packmule/store"
	"github.com/Comcast/packmule/tools"
	. "github.com/Comcast/packmule/util/testutil"

	"github.com/jsccast/yaml"
)

type Opts struct {
	dbFile string
	prefix string
	echo   bool
}

func main() {

	opts := &Opts{}
	flag.StringVar(&opts.dbFile, "db", "", "optional BoltDB file for push/pull")
	flag.StringVar(&opts.prefix, "p", "default", "prefix name for push/pull")
	flag.BoolVar(&opts.echo, "e", false, "echo input")
	flag.Parse()

	if err := opts.run(); err != nil {
		panic(err)
	}
}

// session is what save writes and load reads.
type session struct {
	Records []*record.Package `json:"records" yaml:"records"`
	Specs   []string          `json:"specs,omitempty" yaml:"specs,omitempty"`
}

func (opts *Opts) run() error {

	in := os.Stdin
	w := os.Stdout

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		records []*record.Package
		specs   []*matchspec.MatchSpec
		solvers = solver.Standard()

		storage *store.Storage
	)

	if opts.dbFile != "" {
		var err error
		if storage, err = store.NewStorage(opts.dbFile); err != nil {
			return err
		}
		if err = storage.Open(ctx); err != nil {
			return err
		}
		defer storage.Close(ctx)
	}

	var (
		loadFile = regexp.MustCompile("^load +(.*)")

		saveFile = regexp.MustCompile("^save +(.*)")

		setSpecs = regexp.MustCompile("^specs( +(.*))?$")

		order = regexp.MustCompile("^(order|records|print)$")

		match = regexp.MustCompile("^match +(.*)")

		rem = regexp.MustCompile("^(rem|del|remove|delete) +(.*)")

		prune = regexp.MustCompile("^prune$")

		deps = regexp.MustCompile("^deps +([^ ]+)")

		rdeps = regexp.MustCompile("^rdeps +([^ ]+)")

		solve = regexp.MustCompile("^solve( +([a-z]+))? +(.*)")

		dot = regexp.MustCompile("^dot +(.*)")

		mermaid = regexp.MustCompile("^mermaid +(.*)")

		report = regexp.MustCompile("^report +(.*)")

		push = regexp.MustCompile("^push$")

		pull = regexp.MustCompile("^pull$")

		help = regexp.MustCompile("^(help|h|\\?)")

		outputPrefix = "# "

		say = func(format string, args ...interface{}) {
			fmt.Fprintf(w, outputPrefix+format+"\n", args...)
		}

		protest = func(format string, args ...interface{}) {
			say("error: "+format, args...)
		}
	)

	mkGraph := func() (*graph.PrefixGraph, error) {
		return graph.New(records, specs)
	}

	r := bufio.NewReader(in)
	for {
		line, err := r.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)

		if opts.echo {
			fmt.Println(line)
		}

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		var ss []string

		if ss = help.FindStringSubmatch(line); 0 < len(ss) {
			for _, s := range strings.Split(doc(), "\n") {
				say("%s", s)
			}
			continue
		}

		if ss = loadFile.FindStringSubmatch(line); 0 < len(ss) {
			filename := ss[1]
			bs, err := ioutil.ReadFile(filename)
			if err != nil {
				protest("reading file '%s': %s", filename, err)
				continue
			}
			var sess session
			if err = yaml.Unmarshal(bs, &sess); err != nil {
				protest("loading data: %s", err)
				continue
			}
			if sess.Records == nil {
				// Maybe a bare records document.
				if sess.Records, err = record.ParseJSON(bs); err != nil {
					if sess.Records, err = record.ParseYAML(bs); err != nil {
						protest("no records in '%s'", filename)
						continue
					}
				}
			}
			records = sess.Records
			if sess.Specs != nil {
				if specs, err = parseSpecs(sess.Specs); err != nil {
					protest("%s", err)
					continue
				}
			}
			say("prefix now has %d records", len(records))
			continue
		}

		if ss = saveFile.FindStringSubmatch(line); 0 < len(ss) {
			filename := ss[1]
			sess := &session{
				Records: records,
			}
			for _, spec := range specs {
				sess.Specs = append(sess.Specs, spec.String())
			}
			bs, err := yaml.Marshal(sess)
			if err != nil {
				return err // Internal error
			}
			if err = ioutil.WriteFile(filename, bs, 0644); err != nil {
				protest("writing file: %s", err)
			}
			continue
		}

		if ss = setSpecs.FindStringSubmatch(line); 0 < len(ss) {
			if ss[2] == "" {
				for _, spec := range specs {
					say("%s", spec)
				}
				continue
			}
			parsed, err := parseSpecs(strings.Split(ss[2], ","))
			if err != nil {
				protest("%s", err)
				continue
			}
			specs = parsed
			say("%d requested specs", len(specs))
			continue
		}

		if ss = order.FindStringSubmatch(line); 0 < len(ss) {
			g, err := mkGraph()
			if err != nil {
				protest("%s", err)
				continue
			}
			for i, rec := range g.Records() {
				say("%d. %s", i, rec)
			}
			continue
		}

		if ss = match.FindStringSubmatch(line); 0 < len(ss) {
			spec, err := matchspec.Parse(ss[1])
			if err != nil {
				protest("%s", err)
				continue
			}
			n := 0
			for _, rec := range records {
				if spec.Match(rec) {
					say("%s", JS(rec))
					n++
				}
			}
			say("%d records match %s", n, spec)
			continue
		}

		if ss = rem.FindStringSubmatch(line); 0 < len(ss) {
			spec, err := matchspec.Parse(ss[2])
			if err != nil {
				protest("%s", err)
				continue
			}
			g, err := mkGraph()
			if err != nil {
				protest("%s", err)
				continue
			}
			for _, rec := range g.RemoveSpec(spec) {
				say("removed %s", rec)
			}
			records = g.Records()
			say("prefix now has %d records", len(records))
			continue
		}

		if ss = prune.FindStringSubmatch(line); 0 < len(ss) {
			g, err := mkGraph()
			if err != nil {
				protest("%s", err)
				continue
			}
			for _, rec := range g.Prune() {
				say("pruned %s", rec)
			}
			records = g.Records()
			say("prefix now has %d records", len(records))
			continue
		}

		if ss = deps.FindStringSubmatch(line); 0 < len(ss) {
			g, err := mkGraph()
			if err != nil {
				protest("%s", err)
				continue
			}
			node, err := g.GetNodeByName(ss[1])
			if err != nil {
				protest("%s", err)
				continue
			}
			ancestors, err := g.AllAncestors(node)
			if err != nil {
				protest("%s", err)
				continue
			}
			for _, rec := range ancestors {
				say("%s", rec)
			}
			continue
		}

		if ss = rdeps.FindStringSubmatch(line); 0 < len(ss) {
			g, err := mkGraph()
			if err != nil {
				protest("%s", err)
				continue
			}
			node, err := g.GetNodeByName(ss[1])
			if err != nil {
				protest("%s", err)
				continue
			}
			descendants, err := g.AllDescendants(node)
			if err != nil {
				protest("%s", err)
				continue
			}
			for _, rec := range descendants {
				say("%s", rec)
			}
			continue
		}

		if ss = solve.FindStringSubmatch(line); 0 < len(ss) {
			name := ss[2]
			if name == "" {
				name = "naive"
			}
			backend, have := solvers[name]
			if !have {
				protest("unknown solver '%s'", name)
				continue
			}
			wanted, err := parseSpecs(strings.Split(ss[3], ","))
			if err != nil {
				protest("%s", err)
				continue
			}
			solved, err := backend.Solve(ctx, records, wanted)
			if err != nil {
				protest("solve failed: %s", err)
				continue
			}
			for i, rec := range solved {
				say("%d. %s", i, rec)
			}
			continue
		}

		if ss = dot.FindStringSubmatch(line); 0 < len(ss) {
			if err := render(ss[1], mkGraph, func(g *graph.PrefixGraph, f io.Writer) error {
				return tools.Dot(g, f, opts.prefix)
			}); err != nil {
				protest("%s", err)
			}
			continue
		}

		if ss = mermaid.FindStringSubmatch(line); 0 < len(ss) {
			if err := render(ss[1], mkGraph, func(g *graph.PrefixGraph, f io.Writer) error {
				return tools.Mermaid(g, f, nil)
			}); err != nil {
				protest("%s", err)
			}
			continue
		}

		if ss = report.FindStringSubmatch(line); 0 < len(ss) {
			if err := render(ss[1], mkGraph, func(g *graph.PrefixGraph, f io.Writer) error {
				return tools.RenderReportPage(g, f, opts.prefix, nil)
			}); err != nil {
				protest("%s", err)
			}
			continue
		}

		if ss = push.FindStringSubmatch(line); 0 < len(ss) {
			if storage == nil {
				protest("no -db given")
				continue
			}
			if err := storage.RemPrefix(ctx, opts.prefix); err != nil {
				// A prefix that was never pushed has no bucket.
			}
			if err := storage.WriteRecords(ctx, opts.prefix, records); err != nil {
				protest("push failed: %s", err)
				continue
			}
			say("pushed %d records to %s", len(records), opts.prefix)
			continue
		}

		if ss = pull.FindStringSubmatch(line); 0 < len(ss) {
			if storage == nil {
				protest("no -db given")
				continue
			}
			recs, err := storage.GetRecords(ctx, opts.prefix)
			if err != nil {
				protest("pull failed: %s", err)
				continue
			}
			records = recs
			say("prefix now has %d records", len(records))
			continue
		}

		protest("unsupported command: %s", line)
	}
}

// render writes one graph rendering to a file.
func render(filename string, mk func() (*graph.PrefixGraph, error), f func(*graph.PrefixGraph, io.Writer) error) error {
	g, err := mk()
	if err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err = f(g, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func parseSpecs(strs []string) ([]*matchspec.MatchSpec, error) {
	acc := make([]*matchspec.MatchSpec, 0, len(strs))
	for _, str := range strs {
		str = strings.TrimSpace(str)
		if str == "" {
			continue
		}
		spec, err := matchspec.Parse(str)
		if err != nil {
			return nil, err
		}
		acc = append(acc, spec)
	}
	return acc, nil
}

func doc() string {
	return `
  load FILENAME        Load records (and maybe specs) from a JSON/YAML file
  save FILENAME        Save the records and specs to this file as YAML
  specs [SPEC,SPEC]    Set (or show) the requested specs
  order                Print the records in dependency order
  match SPEC           Print the records matching SPEC
  rem SPEC             Remove matching records and their dependents
  prune                Remove records no requested spec needs
  deps NAME            Print everything NAME depends on
  rdeps NAME           Print everything that depends on NAME
  solve [BACKEND] SPEC,SPEC   Run a solver (naive, latest, goja)
  dot FILENAME         Write a Graphviz rendering of the graph
  mermaid FILENAME     Write a Mermaid rendering of the graph
  report FILENAME      Write an HTML report for the prefix
  push                 Write the records to the -db store
  pull                 Read the records from the -db store
  help                 Show this documentation
`
}
