/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

// Package main is a little command-line utility to invoke spec
// matching.
//
//	specmatch -s 'numpy >=1.11' -r '{"name":"numpy","version":"1.13.1","build":"py36_0"}'
//
// Give -f a records file (JSON or YAML) instead of -r to print every
// matching record.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"runtime"
	"time"

	"github.com/Comcast/packmule/matchspec"
	"github.com/Comcast/packmule/record"
)

func main() {
	var (
		specStr   = flag.String("s", "", "spec string")
		recordJS  = flag.String("r", "", "record in JSON")
		filename  = flag.String("f", "", "records file (JSON or YAML)")
		canonical = flag.Bool("c", false, "print the spec's canonical form")

		bench = flag.Int("bench", 0, "number of times to run (and report time)")
	)

	flag.Parse()

	spec, err := matchspec.Parse(*specStr)
	if err != nil {
		panic(err)
	}

	if *canonical {
		fmt.Printf("%s\n", spec)
	}

	var rec *record.Package
	if *recordJS != "" {
		if err := json.Unmarshal([]byte(*recordJS), &rec); err != nil {
			panic(err)
		}
	}

	var recs []*record.Package
	if *filename != "" {
		bs, err := ioutil.ReadFile(*filename)
		if err != nil {
			panic(err)
		}
		if recs, err = record.ParseJSON(bs); err != nil {
			if recs, err = record.ParseYAML(bs); err != nil {
				panic(err)
			}
		}
	}

	if 0 < *bench && rec != nil {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		allocs := stats.TotalAlloc
		then := time.Now()
		for i := 0; i < *bench; i++ {
			spec.Match(rec)
		}
		elapsed := time.Now().Sub(then)
		meanNanos := elapsed.Nanoseconds() / int64(*bench)

		runtime.ReadMemStats(&stats)
		allocated := (stats.TotalAlloc - allocs) / uint64(*bench)

		log.Printf("%d iterations, %d mean ns/Match, %d mean bytes allocated per Match",
			*bench, meanNanos, allocated)
	}

	if rec != nil {
		fmt.Printf("%v\n", spec.Match(rec))
		return
	}

	if recs != nil {
		matches := make([]*record.Package, 0, len(recs))
		for _, r := range recs {
			if spec.Match(r) {
				matches = append(matches, r)
			}
		}
		js, err := json.Marshal(&matches)
		if err != nil {
			panic(err)
		}
		fmt.Printf("%s\n", js)
	}
}
