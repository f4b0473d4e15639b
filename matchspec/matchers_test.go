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

package matchspec

import (
	"testing"
)

func mustMatcher(t *testing.T, field, value string) Matcher {
	t.Helper()
	m, err := cachedMatcher(field, value)
	if err != nil {
		t.Fatalf("cachedMatcher(%q, %q): %v", field, value, err)
	}
	return m
}

func TestGlobStrMatch(t *testing.T) {
	tests := []struct {
		pattern, value string
		want           bool
	}{
		{"py36_0", "py36_0", true},
		{"py36_0", "py36_1", false},
		{"py36*", "py36_0", true},
		{"py36*", "py27_0", false},
		{"*_0", "py36_0", true},
		{"*_0", "py36_1", false},
		{"^py(27|36)_0$", "py36_0", true},
		{"^py(27|36)_0$", "py35_0", false},
	}
	for _, test := range tests {
		m := mustMatcher(t, "build", test.pattern)
		if got := m.Match(test.value); got != test.want {
			t.Errorf("Match(%q, %q) = %v, wanted %v",
				test.pattern, test.value, got, test.want)
		}
	}

	if _, err := newGlobStrMatch("^py($"); err == nil {
		t.Errorf("wanted an error for a malformed regex")
	}
}

func TestGlobExactValue(t *testing.T) {
	if _, ok := mustMatcher(t, "build", "py36*").ExactValue(); ok {
		t.Errorf("wanted no exact value for a glob")
	}
	if v, ok := mustMatcher(t, "build", "py36_0").ExactValue(); !ok || v != "py36_0" {
		t.Errorf("ExactValue = (%q, %v)", v, ok)
	}
}

func TestGlobMerge(t *testing.T) {
	tests := []struct {
		a, b     string
		want     string
		conflict bool
	}{
		// identical
		{"py36*", "py36*", "py36*", false},
		// exact vs pattern
		{"py36*", "py36_0", "py36_0", false},
		{"py36_0", "py36*", "py36_0", false},
		{"py27*", "py36_0", "", true},
		// exact vs exact
		{"py36_0", "py36_1", "", true},
		// prefix globs: the longer literal wins
		{"py36*", "py36_blas*", "py36_blas*", false},
		{"py36_blas*", "py36*", "py36_blas*", false},
		{"py36*", "py27*", "", true},
		// suffix globs
		{"*_0", "*blas_0", "*blas_0", false},
		{"*blas_0", "*nope_1", "", true},
		// mixed orientations become a regex intersection
		{"py36*", "*_0", `^(?=py36.*)(?:.*_0)$`, false},
	}
	for _, test := range tests {
		a := mustMatcher(t, "build", test.a)
		b := mustMatcher(t, "build", test.b)
		got, err := a.Merge(b)
		if test.conflict {
			if err == nil {
				t.Errorf("Merge(%q, %q) = %q, wanted a conflict", test.a, test.b, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Merge(%q, %q): %v", test.a, test.b, err)
			continue
		}
		if got != test.want {
			t.Errorf("Merge(%q, %q) = %q, wanted %q", test.a, test.b, got, test.want)
		}
	}
}

func TestGlobMergeIntersectionIsUsable(t *testing.T) {
	a := mustMatcher(t, "build", "py36*")
	b := mustMatcher(t, "build", "*_0")
	merged, err := a.Merge(b)
	if err != nil {
		t.Fatal(err)
	}
	// the merged pattern must itself compile and honor both
	// constraints
	m := mustMatcher(t, "build", merged)
	if !m.Match("py36_0") {
		t.Errorf("wanted py36_0 to satisfy %q", merged)
	}
	for _, miss := range []string{"py27_0", "py36_1"} {
		if m.Match(miss) {
			t.Errorf("wanted %q to fail %q", miss, merged)
		}
	}
}

func TestSplitStrMatch(t *testing.T) {
	m := mustMatcher(t, "track_features", "mkl")
	if !m.Match("mkl debug") {
		t.Errorf("wanted overlap to match")
	}
	if m.Match("openblas") {
		t.Errorf("wanted no match")
	}
	if got := m.String(); got != "mkl" {
		t.Errorf("String = %q", got)
	}
}

func TestFeatureMatch(t *testing.T) {
	m := mustMatcher(t, "features", "mkl debug")
	if !m.Match("debug,mkl") {
		t.Errorf("wanted set equality across delimiters")
	}
	if m.Match("mkl") {
		t.Errorf("wanted no match on a subset")
	}
}

func TestChannelMatcher(t *testing.T) {
	m := mustMatcher(t, "channel", "defaults")
	if !m.Match("pkgs/main") {
		t.Errorf("wanted defaults to match pkgs/main")
	}
	if m.Match("conda-forge") {
		t.Errorf("wanted no match")
	}

	glob := mustMatcher(t, "channel", "conda*")
	if !glob.Match("https://conda.anaconda.org/conda-forge/noarch") {
		t.Errorf("wanted glob on the canonical name to match")
	}
	if _, ok := glob.ExactValue(); ok {
		t.Errorf("wanted no exact value for a glob channel")
	}
}

func TestCaseInsensitive(t *testing.T) {
	m := mustMatcher(t, "license", "BSD-3-Clause")
	if !m.Match("bsd-3-clause") || !m.Match("BSD-3-CLAUSE") {
		t.Errorf("wanted case-insensitive equality")
	}
}

func TestExactStrUnion(t *testing.T) {
	a := mustMatcher(t, "md5", "aaa")
	b := mustMatcher(t, "md5", "bbb")
	got, err := a.Union(b)
	if err != nil {
		t.Fatal(err)
	}
	if got != "aaa|bbb" {
		t.Errorf("Union = %q", got)
	}
	if _, err := a.Merge(b); err == nil {
		t.Errorf("wanted a conflict")
	}
}
