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

package record

import (
	"bytes"
	"errors"
	"sort"

	"encoding/json"

	yaml "gopkg.in/yaml.v2"
)

// ErrBadDocument occurs when a records document is in none of the
// supported shapes.
var ErrBadDocument = errors.New("unrecognized records document")

// document is the object form of a records document: either an
// explicit record list or repodata-style filename maps.
type document struct {
	Records       []*Package          `json:"records" yaml:"records"`
	Packages      map[string]*Package `json:"packages" yaml:"packages"`
	PackagesConda map[string]*Package `json:"packages.conda" yaml:"packages.conda"`
}

func (doc *document) records() ([]*Package, error) {
	if doc.Records != nil {
		return doc.Records, nil
	}
	if doc.Packages == nil && doc.PackagesConda == nil {
		return nil, ErrBadDocument
	}
	// Filename maps are unordered, so sort for determinism.
	acc := make([]*Package, 0, len(doc.Packages)+len(doc.PackagesConda))
	for _, m := range []map[string]*Package{doc.Packages, doc.PackagesConda} {
		fns := make([]string, 0, len(m))
		for fn := range m {
			fns = append(fns, fn)
		}
		sort.Strings(fns)
		for _, fn := range fns {
			p := m[fn]
			if p.Fn == "" {
				p.Fn = fn
			}
			acc = append(acc, p)
		}
	}
	return acc, nil
}

// ParseJSON reads records from a JSON document: a bare array, a
// {"records": [...]} object, or repodata ("packages" maps keyed by
// filename).
func ParseJSON(bs []byte) ([]*Package, error) {
	trimmed := bytes.TrimSpace(bs)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var ps []*Package
		if err := json.Unmarshal(trimmed, &ps); err != nil {
			return nil, err
		}
		return ps, nil
	}
	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return doc.records()
}

// ParseYAML reads records from a YAML document in the same shapes as
// ParseJSON.
func ParseYAML(bs []byte) ([]*Package, error) {
	var ps []*Package
	if err := yaml.Unmarshal(bs, &ps); err == nil {
		return ps, nil
	}
	var doc document
	if err := yaml.Unmarshal(bs, &doc); err != nil {
		return nil, err
	}
	return doc.records()
}
