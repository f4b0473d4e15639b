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

package version

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
)

// A Spec is a version range expression such as '>=1.0,<2.0' or
// '1.7*' or '>1.8,<2|==1.7'.
//
// A Spec is immutable once constructed.
type Spec struct {
	spec     string
	exact    bool
	exactVal string
	match    func(string) bool
}

var (
	// Spec tokens: regexes, parentheses and operators, and
	// everything else.  Each token slurps up leading whitespace,
	// which we strip out.
	vspecTokensRe = regexp.MustCompile(`\s*\^[^$]*[$]|\s*[()|,]|[^()|,]+`)

	regexSplitRe = regexp.MustCompile(`.*[()|,^$]`)

	// This regexp matches the operators '==', '!=', '<=', '>=',
	// '<', '>', '=', and '~=' followed by a version string.  It
	// rejects expressions like '<= 1.2' (space after operator),
	// '<>1.2' (unknown operator), and '<=!1.2' (nonsensical
	// operator).  The negative lookahead requires regexp2.
	versionRelationRe = regexp2.MustCompile(`^(=|==|!=|<=|>=|<|>|~=)(?![=<>!~])(\S+)$`, 0)
)

type opFunc func(x, y *Version) bool

var operatorMap = map[string]opFunc{
	"==": func(x, y *Version) bool { return x.Compare(y) == 0 },
	"!=": func(x, y *Version) bool { return x.Compare(y) != 0 },
	"<=": func(x, y *Version) bool { return x.Compare(y) <= 0 },
	">=": func(x, y *Version) bool { return x.Compare(y) >= 0 },
	"<":  func(x, y *Version) bool { return x.Compare(y) < 0 },
	">":  func(x, y *Version) bool { return x.Compare(y) > 0 },
	"=":  func(x, y *Version) bool { return x.StartsWith(y) },

	"!=startswith": func(x, y *Version) bool { return !x.StartsWith(y) },
	"~=":           compatibleRelease,
}

var operatorStart = "=<>!~"

// compatibleRelease implements PEP 440-style '~=': at least y, and
// starting with y with its final component dropped.
func compatibleRelease(x, y *Version) bool {
	if x.Compare(y) < 0 {
		return false
	}
	parts := strings.Split(y.String(), ".")
	if len(parts) < 2 {
		return false
	}
	prefix, err := NewVersion(strings.Join(parts[:len(parts)-1], "."))
	if err != nil {
		return false
	}
	return x.StartsWith(prefix)
}

// vtree is a version spec expression tree.  A zero op means a leaf.
type vtree struct {
	op       byte
	children []*vtree
	leaf     string
}

// treeify converts a Spec expression string into an expression tree,
// fusing nested expressions with the same operator.
func treeify(specStr string) (*vtree, error) {
	tokens := vspecTokensRe.FindAllString("("+specStr+")", -1)

	var (
		output []*vtree
		stack  []byte
	)

	applyOps := func(cstop string) error {
		// cstop: operators with lower precedence
		for len(stack) > 0 && !strings.ContainsRune(cstop, rune(stack[len(stack)-1])) {
			if len(output) < 2 {
				return &InvalidVersion{specStr, "cannot join single expression"}
			}
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			r := output[len(output)-1]
			output = output[:len(output)-1]
			left := output[len(output)-1]
			output = output[:len(output)-1]

			var children []*vtree
			if left.op == c {
				children = append(children, left.children...)
			} else {
				children = append(children, left)
			}
			if r.op == c {
				children = append(children, r.children...)
			} else {
				children = append(children, r)
			}
			output = append(output, &vtree{op: c, children: children})
		}
		return nil
	}

	for _, item := range tokens {
		item = strings.TrimSpace(item)
		switch item {
		case "|":
			if err := applyOps("("); err != nil {
				return nil, err
			}
			stack = append(stack, '|')
		case ",":
			if err := applyOps("|("); err != nil {
				return nil, err
			}
			stack = append(stack, ',')
		case "(":
			stack = append(stack, '(')
		case ")":
			if err := applyOps("("); err != nil {
				return nil, err
			}
			if len(stack) == 0 || stack[len(stack)-1] != '(' {
				return nil, &InvalidVersion{specStr, "expression must start with '('"}
			}
			stack = stack[:len(stack)-1]
		default:
			output = append(output, &vtree{leaf: item})
		}
	}
	if len(stack) > 0 {
		return nil, &InvalidVersion{specStr, "unable to convert to expression tree"}
	}
	if len(output) == 0 {
		return nil, &InvalidVersion{specStr, "unable to determine version from spec"}
	}
	return output[0], nil
}

var (
	specCache   = make(map[string]*Spec)
	specCacheMu sync.Mutex
)

// NewSpec parses a version range expression.
//
// Parses are memoized process-wide, like NewVersion.
func NewSpec(vspec string) (*Spec, error) {
	specCacheMu.Lock()
	if s, have := specCache[vspec]; have {
		specCacheMu.Unlock()
		return s, nil
	}
	specCacheMu.Unlock()

	s, err := parseSpec(vspec)
	if err != nil {
		return nil, err
	}

	specCacheMu.Lock()
	specCache[vspec] = s
	specCacheMu.Unlock()

	return s, nil
}

func parseSpec(vspec string) (*Spec, error) {
	vs := strings.TrimSpace(vspec)
	if vs == "" {
		return nil, &InvalidVersion{vspec, "empty version spec"}
	}
	if regexSplitRe.MatchString(vs) {
		t, err := treeify(vs)
		if err != nil {
			return nil, err
		}
		return specFromTree(t)
	}
	return specFromLeaf(vs)
}

func specFromTree(t *vtree) (*Spec, error) {
	if t.op == 0 {
		return specFromLeaf(strings.TrimSpace(t.leaf))
	}

	subs := make([]*Spec, 0, len(t.children))
	raws := make([]string, 0, len(t.children))
	for _, child := range t.children {
		sub, err := specFromTree(child)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
		raws = append(raws, sub.spec)
	}

	s := &Spec{spec: strings.Join(raws, string(t.op))}
	if t.op == '|' {
		s.match = func(v string) bool {
			for _, sub := range subs {
				if sub.Match(v) {
					return true
				}
			}
			return false
		}
	} else {
		s.match = func(v string) bool {
			for _, sub := range subs {
				if !sub.Match(v) {
					return false
				}
			}
			return true
		}
	}
	return s, nil
}

func specFromLeaf(vs string) (*Spec, error) {
	switch {
	case vs[0] == '^' || vs[len(vs)-1] == '$':
		if vs[0] != '^' || vs[len(vs)-1] != '$' {
			return nil, &InvalidVersion{vs, "regex specs must start with '^' and end with '$'"}
		}
		re, err := regexp.Compile(vs)
		if err != nil {
			return nil, &InvalidVersion{vs, "invalid regular expression"}
		}
		return &Spec{spec: vs, match: re.MatchString}, nil

	case strings.ContainsAny(vs[:1], operatorStart):
		m, err := versionRelationRe.FindStringMatch(vs)
		if err != nil || m == nil {
			return nil, &InvalidVersion{vs, "invalid operator"}
		}
		operatorStr := m.Groups()[1].Capture.String()
		voStr := m.Groups()[2].Capture.String()
		if strings.HasSuffix(voStr, ".*") {
			switch operatorStr {
			case "=", ">=":
				voStr = voStr[:len(voStr)-2]
			case "!=":
				voStr = voStr[:len(voStr)-2]
				operatorStr = "!=startswith"
			case "~=":
				return nil, &InvalidVersion{vs, "invalid operator with '.*'"}
			default:
				// Using .* with a relational operator is
				// superfluous; ignore the suffix.
				voStr = voStr[:len(voStr)-2]
			}
		}
		f, have := operatorMap[operatorStr]
		if !have {
			return nil, &InvalidVersion{vs, "invalid operator: " + operatorStr}
		}
		vo, err := NewVersion(voStr)
		if err != nil {
			return nil, err
		}
		s := &Spec{
			spec:  vs,
			match: operatorMatcher(f, vo),
		}
		if operatorStr == "==" {
			s.exact = true
			s.exactVal = voStr
		}
		return s, nil

	case vs == "*":
		return &Spec{spec: vs, match: func(string) bool { return true }}, nil

	case strings.Contains(strings.TrimRight(vs, "*"), "*"):
		// an inner glob, e.g. '1.*.1'
		rx := strings.ReplaceAll(vs, ".", `\.`)
		rx = strings.ReplaceAll(rx, "+", `\+`)
		rx = strings.ReplaceAll(rx, "*", ".*")
		re, err := regexp.Compile(`^(?:` + rx + `)$`)
		if err != nil {
			return nil, &InvalidVersion{vs, "invalid glob"}
		}
		return &Spec{spec: vs, match: re.MatchString}, nil

	case vs[len(vs)-1] == '*':
		if !strings.HasSuffix(vs, ".*") {
			vs = vs[:len(vs)-1] + ".*"
		}
		voStr := strings.TrimRight(strings.TrimRight(vs, "*"), ".")
		vo, err := NewVersion(voStr)
		if err != nil {
			return nil, err
		}
		return &Spec{
			spec:  vs,
			match: operatorMatcher(operatorMap["="], vo),
		}, nil

	case !strings.Contains(vs, "@"):
		vo, err := NewVersion(vs)
		if err != nil {
			return nil, err
		}
		return &Spec{
			spec:     vs,
			exact:    true,
			exactVal: vs,
			match:    operatorMatcher(operatorMap["=="], vo),
		}, nil

	default:
		return &Spec{
			spec:     vs,
			exact:    true,
			exactVal: vs,
			match:    func(v string) bool { return v == vs },
		}, nil
	}
}

func operatorMatcher(f opFunc, y *Version) func(string) bool {
	return func(v string) bool {
		x, err := NewVersion(v)
		if err != nil {
			return false
		}
		return f(x, y)
	}
}

// Match reports whether the candidate version satisfies the spec.
// An unparseable candidate never matches.
func (s *Spec) Match(v string) bool {
	return s.match(v)
}

// Raw returns the (canonicalized) spec expression.
func (s *Spec) Raw() string {
	return s.spec
}

func (s *Spec) String() string {
	return s.spec
}

// IsExact reports whether the spec pins a single version.
func (s *Spec) IsExact() bool {
	return s.exact
}

// ExactValue returns the pinned version if the spec denotes exactly
// one.  For '==1.0' that's '1.0', without the operator.
func (s *Spec) ExactValue() (string, bool) {
	if s.exact {
		return s.exactVal, true
	}
	return "", false
}

// Merge conjoins two version specs: the result matches only versions
// that satisfy both.
func (s *Spec) Merge(other *Spec) (*Spec, error) {
	vals := []string{s.spec, other.spec}
	sort.Strings(vals)
	return NewSpec(strings.Join(vals, ","))
}

// Union disjoins two version specs textually.  The result is for
// display: the parens get gobbled otherwise, so don't feed it back
// into actual matching.
func (s *Spec) Union(other *Spec) string {
	if s.spec == other.spec {
		return s.spec
	}
	vals := []string{s.spec, other.spec}
	sort.Strings(vals)
	return strings.Join(vals, "|")
}

// BuildNumberMatch is a range expression over integer build numbers:
// an exact number, '*', an operator expression like '>=2', or a
// '^...$' regex.
type BuildNumberMatch struct {
	spec  string
	exact bool
	match func(string) bool
}

var (
	buildNumberCache   = make(map[string]*BuildNumberMatch)
	buildNumberCacheMu sync.Mutex
)

// NewBuildNumberMatch parses a build number expression.
func NewBuildNumberMatch(vspec string) (*BuildNumberMatch, error) {
	buildNumberCacheMu.Lock()
	if m, have := buildNumberCache[vspec]; have {
		buildNumberCacheMu.Unlock()
		return m, nil
	}
	buildNumberCacheMu.Unlock()

	m, err := parseBuildNumberMatch(vspec)
	if err != nil {
		return nil, err
	}

	buildNumberCacheMu.Lock()
	buildNumberCache[vspec] = m
	buildNumberCacheMu.Unlock()

	return m, nil
}

func parseBuildNumberMatch(vspec string) (*BuildNumberMatch, error) {
	vs := strings.TrimSpace(vspec)
	if n, err := strconv.ParseInt(vs, 10, 64); err == nil {
		canonical := strconv.FormatInt(n, 10)
		return &BuildNumberMatch{
			spec:  canonical,
			exact: true,
			match: func(v string) bool {
				vn, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
				return err == nil && vn == n
			},
		}, nil
	}
	if vs == "" {
		return nil, &InvalidVersion{vspec, "empty build number spec"}
	}

	switch {
	case vs == "*":
		return &BuildNumberMatch{spec: vs, match: func(string) bool { return true }}, nil

	case strings.ContainsAny(vs[:1], "=<>!"):
		m, err := versionRelationRe.FindStringMatch(vs)
		if err != nil || m == nil {
			return nil, &InvalidVersion{vs, "invalid operator"}
		}
		operatorStr := m.Groups()[1].Capture.String()
		voStr := m.Groups()[2].Capture.String()
		f, have := operatorMap[operatorStr]
		if !have {
			return nil, &InvalidVersion{vs, "invalid operator: " + operatorStr}
		}
		vo, err := NewVersion(voStr)
		if err != nil {
			return nil, err
		}
		return &BuildNumberMatch{
			spec:  vs,
			exact: operatorStr == "==",
			match: operatorMatcher(f, vo),
		}, nil

	case vs[0] == '^' || vs[len(vs)-1] == '$':
		if vs[0] != '^' || vs[len(vs)-1] != '$' {
			return nil, &InvalidVersion{vs, "regex specs must start with '^' and end with '$'"}
		}
		re, err := regexp.Compile(vs)
		if err != nil {
			return nil, &InvalidVersion{vs, "invalid regular expression"}
		}
		return &BuildNumberMatch{spec: vs, match: re.MatchString}, nil

	default:
		return &BuildNumberMatch{
			spec:  vs,
			exact: true,
			match: func(v string) bool { return v == vs },
		}, nil
	}
}

// Match reports whether the candidate build number satisfies the
// expression.
func (m *BuildNumberMatch) Match(v string) bool {
	return m.match(v)
}

// Raw returns the expression.
func (m *BuildNumberMatch) Raw() string {
	return m.spec
}

func (m *BuildNumberMatch) String() string {
	return m.spec
}

// ExactValue returns the pinned build number if the expression
// denotes exactly one.
func (m *BuildNumberMatch) ExactValue() (int64, bool) {
	n, err := strconv.ParseInt(m.spec, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsExact reports whether the expression pins a single build number.
func (m *BuildNumberMatch) IsExact() bool {
	return m.exact
}

// Merge requires the two expressions to be identical; anything else
// is a conflict.
func (m *BuildNumberMatch) Merge(other *BuildNumberMatch) (*BuildNumberMatch, error) {
	if m.spec != other.spec {
		return nil, &InvalidVersion{m.spec, "incompatible build number merge with '" + other.spec + "'"}
	}
	return m, nil
}

// Union disjoins the two expressions textually.
func (m *BuildNumberMatch) Union(other *BuildNumberMatch) string {
	if m.spec == other.spec {
		return m.spec
	}
	vals := []string{m.spec, other.spec}
	sort.Strings(vals)
	return strings.Join(vals, "|")
}
