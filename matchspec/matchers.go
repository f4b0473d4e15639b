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
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dlclark/regexp2"

	"github.com/Comcast/packmule/channel"
	"github.com/Comcast/packmule/version"
)

// A Matcher decides whether one record field value satisfies one
// constraint, and provides the algebra to combine two constraints of
// the same kind.
//
// Merge returns the raw value of a constraint satisfied only by
// values satisfying both inputs, and Union one satisfied by values
// satisfying either.  Both return raw strings rather than Matchers
// because a merged value is rebuilt into a field-appropriate Matcher
// by the caller.
//
// Matchers are immutable.
type Matcher interface {
	Match(value interface{}) bool
	ExactValue() (string, bool)
	Merge(other Matcher) (string, error)
	Union(other Matcher) (string, error)
	Raw() string
	String() string
}

// asString coerces a field value to its string form.
func asString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}

func defaultMerge(a, b Matcher) (string, error) {
	if a.Raw() == b.Raw() {
		return a.Raw(), nil
	}
	return "", &MergeConflict{a.Raw(), b.Raw()}
}

func defaultUnion(a, b Matcher) (string, error) {
	if a.Raw() == b.Raw() {
		return a.Raw(), nil
	}
	vals := []string{a.Raw(), b.Raw()}
	sort.Strings(vals)
	return strings.Join(vals, "|"), nil
}

// re2Matches runs an anchored regexp2 pattern.
func re2Matches(re *regexp2.Regexp, s string) bool {
	m, err := re.FindStringMatch(s)
	return err == nil && m != nil
}

// compileGlob turns a constraint value into an anchored pattern: a
// '^...$' value compiles as a regular expression, a value with '*'
// compiles as a glob, and anything else returns nil for plain
// equality.  The regexp2 engine is used so that merged lookahead
// patterns stay parseable.
func compileGlob(value string) (*regexp2.Regexp, error) {
	var pattern string
	switch {
	case strings.HasPrefix(value, "^") && strings.HasSuffix(value, "$"):
		pattern = value
	case strings.Contains(value, "*"):
		pattern = `^(?:` + strings.ReplaceAll(regexp.QuoteMeta(value), `\*`, `.*`) + `)$`
	default:
		return nil, nil
	}
	re, err := regexp2.Compile(pattern, 0)
	if err != nil {
		return nil, &InvalidSpec{value, "invalid regular expression"}
	}
	return re, nil
}

// globSide is one side of a glob merge.
type globSide struct {
	raw string
	str string
	re  *regexp2.Regexp
}

// mergeGlobs merges two glob-ish constraints.
//
// Identical values merge to themselves.  A pattern against an exact
// literal keeps the literal if the pattern matches it.  Two prefix
// globs (or two suffix globs) keep the longer literal if one
// contains the other.  Any other pair of patterns merges into a
// lookahead intersection '^(?=a)(?:b)$', which is never rejected
// here: whether any record satisfies it is the caller's problem.
func mergeGlobs(a, b globSide) (string, error) {
	if a.raw == b.raw {
		return a.raw, nil
	}

	if a.re == nil && b.re != nil {
		// keep the pattern, if there is only one, on side a
		a, b = b, a
	}

	if !strings.Contains(b.str, "*") {
		if a.re != nil && re2Matches(a.re, b.str) {
			// b is an exact literal within a's pattern, so
			// b is more strict
			return b.raw, nil
		}
		return "", &MergeConflict{a.raw, b.raw}
	}

	// Both are patterns.  Prefix+prefix and suffix+suffix globs
	// stay globs; everything else becomes a regex intersection.
	if strings.Count(a.raw, "*") == 1 && strings.Count(b.str, "*") == 1 &&
		((a.raw[0] == '*' && b.str[0] == '*') ||
			(a.raw[len(a.raw)-1] == '*' && b.str[len(b.str)-1] == '*')) {
		aLit := strings.Trim(a.raw, "*")
		bLit := strings.Trim(b.str, "*")
		if strings.Contains(bLit, aLit) {
			return b.raw, nil
		}
		if strings.Contains(aLit, bLit) {
			return a.raw, nil
		}
		return "", &MergeConflict{a.raw, b.raw}
	}

	patterns := make([]string, 0, 2)
	for _, value := range []string{a.raw, b.str} {
		switch {
		case strings.HasPrefix(value, "^") && strings.HasSuffix(value, "$"):
			patterns = append(patterns, value[1:len(value)-1])
		case strings.Contains(value, "*"):
			patterns = append(patterns,
				strings.ReplaceAll(regexp.QuoteMeta(value), `\*`, `.*`))
		default:
			patterns = append(patterns, value)
		}
	}
	return `^(?=` + patterns[0] + `)(?:` + patterns[1] + `)$`, nil
}

// ExactStrMatch matches by case-sensitive string equality.
type ExactStrMatch struct {
	raw string
}

func (m *ExactStrMatch) Match(v interface{}) bool       { return m.raw == asString(v) }
func (m *ExactStrMatch) ExactValue() (string, bool)     { return m.raw, true }
func (m *ExactStrMatch) Merge(o Matcher) (string, error) { return defaultMerge(m, o) }
func (m *ExactStrMatch) Union(o Matcher) (string, error) { return defaultUnion(m, o) }
func (m *ExactStrMatch) Raw() string                    { return m.raw }
func (m *ExactStrMatch) String() string                 { return m.raw }

// ExactLowerStrMatch matches by string equality with both sides
// lower-cased.
type ExactLowerStrMatch struct {
	raw string
}

func newExactLowerStrMatch(value string) *ExactLowerStrMatch {
	return &ExactLowerStrMatch{strings.ToLower(value)}
}

func (m *ExactLowerStrMatch) Match(v interface{}) bool {
	return m.raw == strings.ToLower(asString(v))
}
func (m *ExactLowerStrMatch) ExactValue() (string, bool)     { return m.raw, true }
func (m *ExactLowerStrMatch) Merge(o Matcher) (string, error) { return defaultMerge(m, o) }
func (m *ExactLowerStrMatch) Union(o Matcher) (string, error) { return defaultUnion(m, o) }
func (m *ExactLowerStrMatch) Raw() string                    { return m.raw }
func (m *ExactLowerStrMatch) String() string                 { return m.raw }

// GlobStrMatch matches '^...$' values as regular expressions, '*'
// values as globs, and everything else by equality.
type GlobStrMatch struct {
	raw string
	re  *regexp2.Regexp
}

func newGlobStrMatch(value string) (*GlobStrMatch, error) {
	re, err := compileGlob(value)
	if err != nil {
		return nil, err
	}
	return &GlobStrMatch{raw: value, re: re}, nil
}

func (m *GlobStrMatch) Match(v interface{}) bool {
	s := asString(v)
	if m.re != nil {
		return re2Matches(m.re, s)
	}
	return m.raw == s
}

func (m *GlobStrMatch) ExactValue() (string, bool) {
	if m.re != nil {
		return "", false
	}
	return m.raw, true
}

// MatchesAll reports whether the pattern is the universal '*'.
func (m *GlobStrMatch) MatchesAll() bool { return m.raw == "*" }

func (m *GlobStrMatch) Merge(o Matcher) (string, error) {
	other := globSide{raw: o.Raw(), str: o.String()}
	if og, ok := o.(*GlobStrMatch); ok {
		other.re = og.re
	} else if og, ok := o.(*GlobLowerStrMatch); ok {
		other.re = og.re
	}
	return mergeGlobs(globSide{raw: m.raw, str: m.raw, re: m.re}, other)
}

func (m *GlobStrMatch) Union(o Matcher) (string, error) { return defaultUnion(m, o) }
func (m *GlobStrMatch) Raw() string                    { return m.raw }
func (m *GlobStrMatch) String() string                 { return m.raw }

// GlobLowerStrMatch is GlobStrMatch with the pattern lower-cased at
// construction.
type GlobLowerStrMatch struct {
	GlobStrMatch
}

func newGlobLowerStrMatch(value string) (*GlobLowerStrMatch, error) {
	g, err := newGlobStrMatch(strings.ToLower(value))
	if err != nil {
		return nil, err
	}
	return &GlobLowerStrMatch{*g}, nil
}

// CaseInsensitiveStrMatch lower-cases the candidate value, too.
type CaseInsensitiveStrMatch struct {
	GlobLowerStrMatch
}

func newCaseInsensitiveStrMatch(value string) (*CaseInsensitiveStrMatch, error) {
	g, err := newGlobLowerStrMatch(value)
	if err != nil {
		return nil, err
	}
	return &CaseInsensitiveStrMatch{*g}, nil
}

func (m *CaseInsensitiveStrMatch) Match(v interface{}) bool {
	s := strings.ToLower(asString(v))
	if m.re != nil {
		return re2Matches(m.re, s)
	}
	return m.raw == s
}

// splitTokens normalizes a comma- or space-delimited value into a
// sorted token set.
func splitTokens(value string) []string {
	seen := map[string]bool{}
	for _, tok := range strings.Split(strings.ReplaceAll(value, " ", ","), ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			seen[tok] = true
		}
	}
	toks := make([]string, 0, len(seen))
	for tok := range seen {
		toks = append(toks, tok)
	}
	sort.Strings(toks)
	return toks
}

func overlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func sameTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SplitStrMatch matches when the two token sets overlap at all,
// which is the right notion for a dependency constraint on
// track_features.
type SplitStrMatch struct {
	tokens []string
}

func newSplitStrMatch(value string) *SplitStrMatch {
	return &SplitStrMatch{splitTokens(value)}
}

func (m *SplitStrMatch) Match(v interface{}) bool {
	return overlap(m.tokens, splitTokens(asString(v)))
}

func (m *SplitStrMatch) ExactValue() (string, bool)     { return m.String(), true }
func (m *SplitStrMatch) Merge(o Matcher) (string, error) { return defaultMerge(m, o) }
func (m *SplitStrMatch) Union(o Matcher) (string, error) { return defaultUnion(m, o) }
func (m *SplitStrMatch) Raw() string                    { return m.String() }
func (m *SplitStrMatch) String() string                 { return strings.Join(m.tokens, " ") }

// FeatureMatch matches when the two token sets are equal.
type FeatureMatch struct {
	tokens []string
}

func newFeatureMatch(value string) *FeatureMatch {
	return &FeatureMatch{splitTokens(value)}
}

func (m *FeatureMatch) Match(v interface{}) bool {
	return sameTokens(m.tokens, splitTokens(asString(v)))
}

func (m *FeatureMatch) ExactValue() (string, bool)     { return m.String(), true }
func (m *FeatureMatch) Merge(o Matcher) (string, error) { return defaultMerge(m, o) }
func (m *FeatureMatch) Union(o Matcher) (string, error) { return defaultUnion(m, o) }
func (m *FeatureMatch) Raw() string                    { return m.String() }
func (m *FeatureMatch) String() string                 { return strings.Join(m.tokens, " ") }

// ChannelMatch resolves both sides to canonical channel identities
// before comparing.  Wildcard and regex forms apply to the resolved
// canonical name.
type ChannelMatch struct {
	raw string
	c   *channel.Channel
	re  *regexp2.Regexp
}

func newChannelMatch(value string) (*ChannelMatch, error) {
	m := &ChannelMatch{raw: value}
	var err error
	if m.re, err = compileGlob(value); err != nil {
		return nil, err
	}
	if m.re == nil {
		if m.c, err = channel.Parse(value); err != nil {
			return nil, &InvalidSpec{value, "invalid channel"}
		}
	}
	return m, nil
}

func (m *ChannelMatch) Match(v interface{}) bool {
	c, err := channel.Parse(asString(v))
	if err != nil {
		return false
	}
	if m.re != nil {
		return re2Matches(m.re, c.CanonicalName())
	}
	return m.c.Matches(c)
}

func (m *ChannelMatch) ExactValue() (string, bool) {
	if m.re != nil {
		return "", false
	}
	return m.c.Name, true
}

func (m *ChannelMatch) Merge(o Matcher) (string, error) {
	other := globSide{raw: o.Raw(), str: o.String()}
	if oc, ok := o.(*ChannelMatch); ok {
		other.re = oc.re
	}
	return mergeGlobs(globSide{raw: m.raw, str: m.String(), re: m.re}, other)
}

func (m *ChannelMatch) Union(o Matcher) (string, error) { return defaultUnion(m, o) }
func (m *ChannelMatch) Raw() string                    { return m.raw }

func (m *ChannelMatch) String() string {
	if m.c != nil {
		return m.c.Name
	}
	return m.raw
}

// VersionMatch adapts a version range spec to the Matcher contract.
type VersionMatch struct {
	spec *version.Spec
}

func newVersionMatch(value string) (*VersionMatch, error) {
	spec, err := version.NewSpec(value)
	if err != nil {
		return nil, err
	}
	return &VersionMatch{spec}, nil
}

func (m *VersionMatch) Match(v interface{}) bool { return m.spec.Match(asString(v)) }

func (m *VersionMatch) ExactValue() (string, bool) { return m.spec.ExactValue() }

func (m *VersionMatch) Merge(o Matcher) (string, error) {
	if m.Raw() == o.Raw() {
		return m.Raw(), nil
	}
	// Two distinct pins can't both hold.  Range expressions
	// conjoin instead.
	if a, exact := m.ExactValue(); exact {
		if b, exact := o.ExactValue(); exact {
			if a == b {
				return a, nil
			}
			return "", &MergeConflict{a, b}
		}
	}
	vals := []string{m.Raw(), o.Raw()}
	sort.Strings(vals)
	return strings.Join(vals, ","), nil
}

func (m *VersionMatch) Union(o Matcher) (string, error) { return defaultUnion(m, o) }
func (m *VersionMatch) Raw() string                    { return m.spec.Raw() }
func (m *VersionMatch) String() string                 { return m.spec.Raw() }

// IsExact reports whether the range pins a single version.
func (m *VersionMatch) IsExact() bool { return m.spec.IsExact() }

// BuildNumberMatcher adapts a build number range to the Matcher
// contract.
type BuildNumberMatcher struct {
	m *version.BuildNumberMatch
}

func newBuildNumberMatcher(value string) (*BuildNumberMatcher, error) {
	m, err := version.NewBuildNumberMatch(value)
	if err != nil {
		return nil, err
	}
	return &BuildNumberMatcher{m}, nil
}

func (m *BuildNumberMatcher) Match(v interface{}) bool { return m.m.Match(asString(v)) }

func (m *BuildNumberMatcher) ExactValue() (string, bool) {
	if n, ok := m.m.ExactValue(); ok {
		return strconv.FormatInt(n, 10), true
	}
	return "", false
}

func (m *BuildNumberMatcher) Merge(o Matcher) (string, error) { return defaultMerge(m, o) }
func (m *BuildNumberMatcher) Union(o Matcher) (string, error) { return defaultUnion(m, o) }
func (m *BuildNumberMatcher) Raw() string                    { return m.m.Raw() }
func (m *BuildNumberMatcher) String() string                 { return m.m.Raw() }

// newMatcher builds the right Matcher variant for a field.
func newMatcher(field, value string) (Matcher, error) {
	switch field {
	case "channel":
		return newChannelMatch(value)
	case "name":
		return newGlobLowerStrMatch(value)
	case "version":
		return newVersionMatch(value)
	case "build":
		return newGlobStrMatch(value)
	case "build_number":
		return newBuildNumberMatcher(value)
	case "track_features":
		return newSplitStrMatch(value), nil
	case "features":
		return newFeatureMatch(value), nil
	case "license", "license_family":
		return newCaseInsensitiveStrMatch(value)
	}
	return &ExactStrMatch{value}, nil
}

var (
	matcherCache   = make(map[string]Matcher)
	matcherCacheMu sync.Mutex
)

// cachedMatcher memoizes newMatcher per (field, value).  Losing a
// race just recomputes an identical immutable matcher.
func cachedMatcher(field, value string) (Matcher, error) {
	key := field + "\x00" + value
	matcherCacheMu.Lock()
	if m, have := matcherCache[key]; have {
		matcherCacheMu.Unlock()
		return m, nil
	}
	matcherCacheMu.Unlock()

	m, err := newMatcher(field, value)
	if err != nil {
		return nil, err
	}

	matcherCacheMu.Lock()
	matcherCache[key] = m
	matcherCacheMu.Unlock()

	return m, nil
}
