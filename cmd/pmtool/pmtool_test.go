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

package main

import (
	"testing"

	"github.com/Comcast/packmule/record"

	"github.com/jsccast/yaml"
)

func TestParseSpecs(t *testing.T) {
	specs, err := parseSpecs([]string{"numpy >=1.11", " flask", ""})
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs", len(specs))
	}
	if specs[1].Name() != "flask" {
		t.Errorf("specs[1] = %s", specs[1])
	}

	if _, err = parseSpecs([]string{"numpy=="}); err == nil {
		t.Error("wanted a parse error")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	sess := &session{
		Records: []*record.Package{
			{Name: "python", Version: "3.7.0", Build: "0"},
		},
		Specs: []string{"python"},
	}
	bs, err := yaml.Marshal(sess)
	if err != nil {
		t.Fatal(err)
	}
	var again session
	if err = yaml.Unmarshal(bs, &again); err != nil {
		t.Fatal(err)
	}
	if len(again.Records) != 1 || again.Records[0].Name != "python" {
		t.Fatalf("records = %v", again.Records)
	}
	if len(again.Specs) != 1 || again.Specs[0] != "python" {
		t.Fatalf("specs = %v", again.Specs)
	}
}
