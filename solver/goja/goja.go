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

// Package goja is a solver scripted in ECMAScript via Goja, which is
// a Go implementation of ECMAScript 5.1+.
//
// See https://github.com/dop251/goja.
package goja

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/Comcast/packmule/matchspec"
	"github.com/Comcast/packmule/record"
	"github.com/Comcast/packmule/version"

	"github.com/dop251/goja"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Solve if the execution is
	// interrupted.
	Interrupted = errors.New(InterruptedMessage)
)

// DefaultSrc is the script a zero-configured Solver runs: for each
// requested spec, emit the highest-version matching record.  No
// dependency closure; it's a demonstration, not a real solver.
var DefaultSrc = `
for (var i = 0; i < _.specs.length; i++) {
	var spec = _.specs[i];
	var best = null;
	for (var j = 0; j < _.records.length; j++) {
		var r = _.records[j];
		if (!_.match(spec, r)) {
			continue;
		}
		if (best === null || _.cmpVersions(r.version, best.version) > 0) {
			best = r;
		}
	}
	if (best === null) {
		throw "unsatisfiable spec " + spec;
	}
	_.out(best);
}
`

// Solver runs a script against the pool and the requested specs.
//
// The following properties are available from the runtime at _.
//
//	records: the candidate records, as plain objects.
//	specs: the requested specs, as canonical strings.
//	out(rec): emit the given record as part of the solution.
//
// Some useful utilities:
//
//	match(spec, rec): true if the spec string matches the record.
//	cmpVersions(a, b): -1, 0, or 1 per the version ordering.
//	log(x): log the given value as JSON.
//
// The solution is what the script out()s, in that order.  A script
// that emits nothing can instead return an array of records.
type Solver struct {
	Src string
}

// NewSolver makes a Solver for the given script.  An empty src means
// DefaultSrc.
func NewSolver(src string) *Solver {
	if src == "" {
		src = DefaultSrc
	}
	return &Solver{
		Src: src,
	}
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

func (s *Solver) Solve(ctx context.Context, pool []*record.Package, specs []*matchspec.MatchSpec) ([]*record.Package, error) {
	p, err := goja.Compile("", wrapSrc(s.Src), true)
	if err != nil {
		return nil, err
	}

	recs, err := canonicalize(pool)
	if err != nil {
		return nil, err
	}
	specStrs := make([]string, len(specs))
	for i, spec := range specs {
		specStrs[i] = spec.String()
	}

	env := map[string]interface{}{
		"records": recs,
		"specs":   specStrs,
	}

	o := goja.New()
	o.Set("_", env)

	emitted := make([]interface{}, 0, len(specs))
	env["out"] = func(x interface{}) interface{} {
		switch vv := x.(type) {
		case goja.Value:
			x = vv.Export()
		}
		var err error
		if x, err = canonicalize(x); err != nil {
			// Will end up as a Javascript exception.
			panic(err)
		}
		emitted = append(emitted, x)
		return x
	}

	env["log"] = func(x interface{}) interface{} {
		switch vv := x.(type) {
		case goja.Value:
			x = vv.Export()
		}
		js, err := json.Marshal(&x)
		if err != nil {
			log.Println("goja.log (can't marshal: " + err.Error() + ")")
		} else {
			log.Println(string(js))
		}
		return x
	}

	env["match"] = func(specV, recV goja.Value) interface{} {
		specStr, is := specV.Export().(string)
		if !is {
			protest(o, "spec is not a string")
		}
		spec, err := matchspec.Parse(specStr)
		if err != nil {
			protest(o, err.Error())
		}

		x, err := canonicalize(recV.Export())
		if err != nil {
			protest(o, err.Error())
		}
		m, is := x.(map[string]interface{})
		if !is {
			protest(o, "record is not an object")
		}

		return spec.Match(matchspec.MapRecord(m))
	}

	env["cmpVersions"] = func(aV, bV goja.Value) interface{} {
		a, is := aV.Export().(string)
		if !is {
			protest(o, "not a string")
		}
		b, is := bV.Export().(string)
		if !is {
			protest(o, "not a string")
		}
		va, err := version.NewVersion(a)
		if err != nil {
			protest(o, err.Error())
		}
		vb, err := version.NewVersion(b)
		if err != nil {
			protest(o, err.Error())
		}
		return va.Compare(vb)
	}

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If Solve calls cancel() after RunProgram returns,
		// then we'll never see this InterruptedMessage, which
		// is actually the behavior we want.  In this case, we
		// weren't actually interrupted.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(p)
	cancel()

	if err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			return nil, Interrupted
		}
		return nil, err
	}

	result := emitted
	if len(result) == 0 {
		if xs, is := v.Export().([]interface{}); is {
			result = xs
		}
	}

	return asRecords(result)
}

// asRecords converts the script's plain objects back into records.
func asRecords(xs []interface{}) ([]*record.Package, error) {
	js, err := json.Marshal(&xs)
	if err != nil {
		return nil, err
	}
	var recs []*record.Package
	if err = json.Unmarshal(js, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// canonicalize is an abomination
func canonicalize(x interface{}) (interface{}, error) {
	js, err := json.Marshal(&x)
	if err != nil {
		return nil, err
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return nil, err
	}
	return y, nil
}
