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

// Package version implements the ordering relation for package
// version strings along with version range specs ('Spec') and build
// number specs ('BuildNumberMatch').
//
// Version strings contain alphanumeric components separated by dots
// and underscores, with an optional epoch ('1!2.0') and an optional
// local version ('1.0+local').  The resulting order is mostly what
// you'd hope for:
//
//	0.4 < 0.4.1.rc == 0.4.1.RC < 0.4.1 < 0.5a1 < 0.5 < 1.0
//	  < 1.1dev1 < 1.1a1 < 1.1.0dev1 < 1.1.0rc1 < 1.1.0 == 1.1
//	  < 1.1.0post1 < 1996.07.12 < 1!0.4.1
//
// 'dev' segments sort below everything else at their position, and
// 'post' segments sort above everything else.  A trailing underscore
// ('1.0.1_') keeps openssl-style letter suffixes ordered as version
// counters rather than pre-releases.
package version

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// InvalidVersion occurs when a version string cannot be parsed.
type InvalidVersion struct {
	// Version is the offending input.
	Version string

	// Problem says what went wrong.
	Problem string
}

func (e *InvalidVersion) Error() string {
	return `invalid version '` + e.Version + `': ` + e.Problem
}

var (
	versionCheckRe = regexp.MustCompile(`^[\*\.\+!_0-9a-z]+$`)
	versionSplitRe = regexp.MustCompile(`([0-9]+|[*]+|[^0-9*]+)`)
)

// atom is one run of numerals or non-numerals within a version
// component.
//
// Numeric atoms compare numerically, string atoms lexicographically,
// and string atoms sort below numeric ones.  'post' is a numeric atom
// greater than every other atom, and 'dev' is stored as the string
// "DEV", which sorts below every lower-case string.
type atom struct {
	num   int64
	str   string
	isNum bool
	inf   bool
}

var zeroAtom = atom{isNum: true}

func cmpAtom(a, b atom) int {
	if a.isNum != b.isNum {
		// strings sort below numbers
		if a.isNum {
			return 1
		}
		return -1
	}
	if a.isNum {
		switch {
		case a.inf && b.inf:
			return 0
		case a.inf:
			return 1
		case b.inf:
			return -1
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	}
	return strings.Compare(a.str, b.str)
}

// Version is a parsed version string that supports comparison.
//
// A Version is immutable once constructed.
type Version struct {
	norm    string
	version [][]atom
	local   [][]atom
}

var (
	versionCache   = make(map[string]*Version)
	versionCacheMu sync.Mutex
)

// NewVersion parses a version string.
//
// Parses are memoized process-wide.  Since version strings are drawn
// from a bounded vocabulary per run, the cache is never evicted.
func NewVersion(vstr string) (*Version, error) {
	versionCacheMu.Lock()
	if v, have := versionCache[vstr]; have {
		versionCacheMu.Unlock()
		return v, nil
	}
	versionCacheMu.Unlock()

	v, err := parseVersion(vstr)
	if err != nil {
		return nil, err
	}

	versionCacheMu.Lock()
	versionCache[vstr] = v
	versionCacheMu.Unlock()

	return v, nil
}

func parseVersion(vstr string) (*Version, error) {
	// version comparison is case-insensitive
	version := strings.ToLower(strings.TrimSpace(vstr))
	if version == "" {
		return nil, &InvalidVersion{vstr, "empty version string"}
	}
	invalid := !versionCheckRe.MatchString(version)
	if invalid && strings.Contains(version, "-") && !strings.Contains(version, "_") {
		// Allow for dashes as long as there are no underscores
		// as well, by converting the former to the latter.
		version = strings.ReplaceAll(version, "-", "_")
		invalid = !versionCheckRe.MatchString(version)
	}
	if invalid {
		return nil, &InvalidVersion{vstr, "invalid character(s)"}
	}

	v := &Version{norm: version}

	// find epoch
	var epoch string
	switch parts := strings.Split(version, "!"); len(parts) {
	case 1:
		epoch = "0"
	case 2:
		if _, err := strconv.ParseInt(parts[0], 10, 64); err != nil {
			return nil, &InvalidVersion{vstr, "epoch must be an integer"}
		}
		epoch = parts[0]
		version = parts[1]
	default:
		return nil, &InvalidVersion{vstr, "duplicated epoch separator '!'"}
	}

	// find local version string
	var localParts []string
	switch parts := strings.Split(version, "+"); len(parts) {
	case 1:
	case 2:
		localParts = strings.Split(strings.ReplaceAll(parts[1], "_", "."), ".")
		version = parts[0]
	default:
		return nil, &InvalidVersion{vstr, "duplicated local version separator '+'"}
	}
	if version == "" {
		return nil, &InvalidVersion{vstr, "missing version before local version separator '+'"}
	}

	var splitVersion []string
	if version[len(version)-1] == '_' {
		// Keep a trailing underscore attached to the last
		// component for openssl-like versions.
		splitVersion = strings.Split(strings.ReplaceAll(version[:len(version)-1], "_", "."), ".")
		splitVersion[len(splitVersion)-1] += "_"
	} else {
		splitVersion = strings.Split(strings.ReplaceAll(version, "_", "."), ".")
	}

	var err error
	if v.version, err = atomize(vstr, append([]string{epoch}, splitVersion...)); err != nil {
		return nil, err
	}
	if v.local, err = atomize(vstr, localParts); err != nil {
		return nil, err
	}

	return v, nil
}

func atomize(vstr string, components []string) ([][]atom, error) {
	acc := make([][]atom, 0, len(components))
	for _, component := range components {
		runs := versionSplitRe.FindAllString(component, -1)
		if len(runs) == 0 {
			return nil, &InvalidVersion{vstr, "empty version component"}
		}
		atoms := make([]atom, 0, len(runs)+1)
		if !isDigit(component[0]) {
			// Components shall start with a number to keep
			// numbers and strings in phase.
			atoms = append(atoms, zeroAtom)
		}
		for _, run := range runs {
			switch {
			case isDigit(run[0]):
				n, err := strconv.ParseInt(run, 10, 64)
				if err != nil {
					return nil, &InvalidVersion{vstr, "numeral out of range"}
				}
				atoms = append(atoms, atom{num: n, isNum: true})
			case run == "post":
				// 'post' sorts above everything
				atoms = append(atoms, atom{isNum: true, inf: true})
			case run == "dev":
				// "DEV" sorts below every lower-case string
				atoms = append(atoms, atom{str: "DEV"})
			default:
				atoms = append(atoms, atom{str: run})
			}
		}
		acc = append(acc, atoms)
	}
	return acc, nil
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func (v *Version) String() string {
	return v.norm
}

func cmpComponents(t1, t2 [][]atom) int {
	n := len(t1)
	if len(t2) > n {
		n = len(t2)
	}
	for i := 0; i < n; i++ {
		var v1, v2 []atom
		if i < len(t1) {
			v1 = t1[i]
		}
		if i < len(t2) {
			v2 = t2[i]
		}
		m := len(v1)
		if len(v2) > m {
			m = len(v2)
		}
		for j := 0; j < m; j++ {
			c1, c2 := zeroAtom, zeroAtom
			if j < len(v1) {
				c1 = v1[j]
			}
			if j < len(v2) {
				c2 = v2[j]
			}
			if c := cmpAtom(c1, c2); c != 0 {
				return c
			}
		}
	}
	return 0
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or
// greater than o.  The local version only matters when the main
// versions are equal.
func (v *Version) Compare(o *Version) int {
	if c := cmpComponents(v.version, o.version); c != 0 {
		return c
	}
	return cmpComponents(v.local, o.local)
}

// Equal reports whether the two versions are equal under the
// ordering relation (so '1.1' equals '1.1.0').
func (v *Version) Equal(o *Version) bool {
	return v.Compare(o) == 0
}

// LessThan reports v < o.
func (v *Version) LessThan(o *Version) bool {
	return v.Compare(o) < 0
}

func eqAtoms(v1, v2 []atom) bool {
	m := len(v1)
	if len(v2) > m {
		m = len(v2)
	}
	for j := 0; j < m; j++ {
		c1, c2 := zeroAtom, zeroAtom
		if j < len(v1) {
			c1 = v1[j]
		}
		if j < len(v2) {
			c2 = v2[j]
		}
		if cmpAtom(c1, c2) != 0 {
			return false
		}
	}
	return true
}

func eqComponents(t1, t2 [][]atom) bool {
	n := len(t1)
	if len(t2) > n {
		n = len(t2)
	}
	for i := 0; i < n; i++ {
		var v1, v2 []atom
		if i < len(t1) {
			v1 = t1[i]
		}
		if i < len(t2) {
			v2 = t2[i]
		}
		if !eqAtoms(v1, v2) {
			return false
		}
	}
	return true
}

// StartsWith tests whether the version lists match up to the last
// component of o, with the last component of o doing a prefix match.
// That's what makes '1.7*' match '1.7.1' but not '1.71'.
func (v *Version) StartsWith(o *Version) bool {
	t1, t2 := v.version, o.version
	if len(o.local) > 0 {
		if !eqComponents(v.version, o.version) {
			return false
		}
		t1, t2 = v.local, o.local
	}

	nt := len(t2) - 1
	if nt < 0 {
		return true
	}
	head1 := t1
	if len(t1) > nt {
		head1 = t1[:nt]
	}
	if !eqComponents(head1, t2[:nt]) {
		return false
	}

	var v1 []atom
	if len(t1) > nt {
		v1 = t1[nt]
	}
	v2 := t2[nt]

	na := len(v2) - 1
	head1a := v1
	if len(v1) > na {
		head1a = v1[:na]
	}
	if !eqAtoms(head1a, v2[:na]) {
		return false
	}

	c1 := zeroAtom
	if len(v1) > na {
		c1 = v1[na]
	}
	c2 := v2[na]
	if !c2.isNum {
		return !c1.isNum && strings.HasPrefix(c1.str, c2.str)
	}
	return cmpAtom(c1, c2) == 0
}
