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
	"testing"
)

func TestField(t *testing.T) {
	p := &Package{
		Name:        "numpy",
		Version:     "1.22.3",
		Build:       "py39_0",
		BuildNumber: 2,
		Channel:     "conda-forge",
	}
	tests := []struct {
		field string
		want  interface{}
		ok    bool
	}{
		{"name", "numpy", true},
		{"version", "1.22.3", true},
		{"build", "py39_0", true},
		{"build_number", 2, true},
		{"channel", "conda-forge", true},
		{"md5", "", true},
		{"depends", nil, false},
		{"nope", nil, false},
	}
	for _, test := range tests {
		got, ok := p.Field(test.field)
		if ok != test.ok || (ok && got != test.want) {
			t.Errorf("Field(%q) = (%v, %v), wanted (%v, %v)",
				test.field, got, ok, test.want, test.ok)
		}
	}
}

func TestDistStr(t *testing.T) {
	p := &Package{Name: "numpy", Version: "1.22.3", Build: "py39_0"}
	if got := p.DistStr(); got != "numpy-1.22.3-py39_0" {
		t.Errorf("DistStr = %q", got)
	}
	p.Channel = "https://repo.anaconda.com/pkgs/main/linux-64"
	if got := p.DistStr(); got != "defaults::numpy-1.22.3-py39_0" {
		t.Errorf("DistStr = %q", got)
	}
}

func TestParseJSON(t *testing.T) {
	for _, doc := range []string{
		`[{"name":"a","version":"1.0"},{"name":"b","version":"2.0"}]`,
		`{"records":[{"name":"a","version":"1.0"},{"name":"b","version":"2.0"}]}`,
	} {
		ps, err := ParseJSON([]byte(doc))
		if err != nil {
			t.Fatalf("ParseJSON(%s): %v", doc, err)
		}
		if len(ps) != 2 || ps[0].Name != "a" || ps[1].Name != "b" {
			t.Errorf("ParseJSON(%s) = %v", doc, ps)
		}
	}
}

func TestParseJSONRepodata(t *testing.T) {
	doc := `{"packages":{
		"b-2.0-0.tar.bz2":{"name":"b","version":"2.0"},
		"a-1.0-0.tar.bz2":{"name":"a","version":"1.0"}}}`
	ps, err := ParseJSON([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 2 || ps[0].Name != "a" || ps[1].Name != "b" {
		t.Errorf("got %v", ps)
	}
	if ps[0].Fn != "a-1.0-0.tar.bz2" {
		t.Errorf("Fn = %q", ps[0].Fn)
	}
}

func TestParseYAML(t *testing.T) {
	doc := `
- name: flask
  version: "1.0"
  depends:
    - python >=3.7
- name: python
  version: "3.9.1"
  build_number: 1
`
	ps, err := ParseYAML([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 2 || ps[0].Name != "flask" || ps[1].BuildNumber != 1 {
		t.Errorf("got %v", ps)
	}
	if len(ps[0].Depends) != 1 || ps[0].Depends[0] != "python >=3.7" {
		t.Errorf("Depends = %v", ps[0].Depends)
	}
}

func TestParseBad(t *testing.T) {
	if _, err := ParseJSON([]byte(`{"nope": 1}`)); err == nil {
		t.Errorf("wanted an error")
	}
}
