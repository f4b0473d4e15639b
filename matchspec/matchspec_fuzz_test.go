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

// Fuzz spec strings built from grammar fragments and verify that
// whatever parses also round-trips through its canonical form.

import (
	"math/rand"
	"testing"
	"time"
)

var (
	fuzzNames    = []string{"numpy", "scipy", "_license", "py-lib", "openssl"}
	fuzzVersions = []string{"", "1.2.3", "=1.2", "1.2.*", ">=1.2", ">=1.0,<2.0", "!=1.4", ">1.8,<2|==1.7"}
	fuzzBuilds   = []string{"", "py36_0", "py36*", "0"}
	fuzzChannels = []string{"", "conda-forge::", "defaults::", "conda-forge/linux-64::"}
	fuzzBrackets = []string{"", "[subdir=linux-64]", "[build_number=2]", "[license=MIT]", "[md5=0123456789abcdef0123456789abcdef]"}
)

func TestFuzzRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UTC().UnixNano()))

	pick := func(options []string) string {
		return options[rng.Intn(len(options))]
	}

	for i := 0; i < 2000; i++ {
		s := pick(fuzzChannels) + pick(fuzzNames)
		if version := pick(fuzzVersions); version != "" {
			s += " " + version
			if build := pick(fuzzBuilds); build != "" {
				s += " " + build
			}
		}
		s += pick(fuzzBrackets)

		spec, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}

		canonical := spec.String()
		again, err := Parse(canonical)
		if err != nil {
			t.Fatalf("Parse(%q) (canonical form of %q): %v", canonical, s, err)
		}
		if got := again.String(); got != canonical {
			t.Fatalf("round trip of %q: %q != %q", s, got, canonical)
		}
	}
}
