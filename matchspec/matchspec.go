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

// Package matchspec implements the query language for package
// records.
//
// A spec string names a package and constrains any of its fields:
//
//	numpy
//	numpy 1.11.0 py36_0
//	numpy >=1.11,<2
//	conda-forge::numpy=1.11
//	numpy[build=py36*,subdir=linux-64]
//
// Parse turns such a string into a MatchSpec, whose Match method
// tests package records.  Specs render back to a canonical string
// form, and specs constraining the same package can be merged.
package matchspec

import (
	"sort"
	"strings"
)

// FieldNames are the record fields a spec can constrain, in
// canonical rendering order.
var FieldNames = []string{
	"channel",
	"subdir",
	"name",
	"version",
	"build",
	"build_number",
	"track_features",
	"features",
	"url",
	"md5",
	"sha256",
	"license",
	"license_family",
	"fn",
}

var fieldNameSet = func() map[string]bool {
	set := make(map[string]bool, len(FieldNames))
	for _, name := range FieldNames {
		set[name] = true
	}
	return set
}()

// A Record is anything a spec can match against: given a field name,
// it returns the field's value, or false for fields it doesn't have.
type Record interface {
	Field(name string) (interface{}, bool)
}

// MapRecord adapts a plain map to the Record interface.
type MapRecord map[string]interface{}

func (m MapRecord) Field(name string) (interface{}, bool) {
	v, have := m[name]
	return v, have
}

// A MatchSpec is one parsed package query.
//
// A MatchSpec is immutable once constructed.
type MatchSpec struct {
	components map[string]Matcher

	// optional marks a constraint the consumer may choose not to
	// satisfy.  target is an opaque value for downstream solvers,
	// not interpreted here.
	optional bool
	target   string

	// original is the spec string this was parsed from, if any.
	// Kept for diagnostics; the canonical form comes from String.
	original string
}

// Parse parses a spec string.  Parses are memoized process-wide.
func Parse(specStr string) (*MatchSpec, error) {
	p, err := parseSpecStr(specStr)
	if err != nil {
		return nil, err
	}
	return construct(p.fields, p.optional, p.target, specStr)
}

// New constructs a spec from field values.  A missing name means
// "any package".
func New(fields map[string]string) (*MatchSpec, error) {
	if _, have := fields["name"]; !have {
		copied := make(map[string]string, len(fields)+1)
		for k, v := range fields {
			copied[k] = v
		}
		copied["name"] = "*"
		fields = copied
	}
	return construct(fields, false, "", "")
}

// FromDistStr parses a '[channel[/subdir]::]name-version-build[.ext]'
// dist string into a fully pinned spec.
func FromDistStr(distStr string) (*MatchSpec, error) {
	original := distStr
	distStr = stripPkgExtension(distStr)

	fields := map[string]string{}
	if ndx := strings.Index(distStr, "::"); ndx >= 0 {
		channelSubdir := distStr[:ndx]
		distStr = distStr[ndx+2:]
		if slash := strings.LastIndex(channelSubdir, "/"); slash >= 0 {
			maybeSubdir := channelSubdir[slash+1:]
			if isKnownSubdir(maybeSubdir) {
				fields["channel"] = channelSubdir[:slash]
				fields["subdir"] = maybeSubdir
			} else {
				fields["channel"] = channelSubdir
			}
		} else {
			fields["channel"] = channelSubdir
		}
	}

	name, version, build, err := parseLegacyDist(distStr)
	if err != nil {
		return nil, &InvalidMatchSpec{original, "not a dist string"}
	}
	fields["name"] = name
	fields["version"] = version
	fields["build"] = build
	return construct(fields, false, "", original)
}

func construct(fields map[string]string, optional bool, target, original string) (*MatchSpec, error) {
	components := make(map[string]Matcher, len(fields))
	for field, value := range fields {
		if !fieldNameSet[field] {
			return nil, &InvalidMatchSpec{originalOr(original, fields), "cannot match on field '" + field + "'"}
		}
		m, err := cachedMatcher(field, value)
		if err != nil {
			return nil, &InvalidMatchSpec{originalOr(original, fields), err.Error()}
		}
		components[field] = m
	}
	return &MatchSpec{
		components: components,
		optional:   optional,
		target:     target,
		original:   original,
	}, nil
}

func originalOr(original string, fields map[string]string) string {
	if original != "" {
		return original
	}
	parts := make([]string, 0, len(fields))
	for k, v := range fields {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// With returns a copy with the given field overrides applied.  With
// no overrides, the spec itself is returned.
func (s *MatchSpec) With(overrides map[string]string) (*MatchSpec, error) {
	if len(overrides) == 0 {
		return s, nil
	}
	fields := make(map[string]string, len(s.components)+len(overrides))
	for field, m := range s.components {
		fields[field] = m.Raw()
	}
	for field, value := range overrides {
		fields[field] = value
	}
	return construct(fields, s.optional, s.target, "")
}

// WithOptions returns a copy with the optional flag and target set.
func (s *MatchSpec) WithOptions(optional bool, target string) *MatchSpec {
	if s.optional == optional && s.target == target {
		return s
	}
	copied := *s
	copied.optional = optional
	copied.target = target
	return &copied
}

// Name returns the exact package name, or "*" if the spec doesn't
// pin one.
func (s *MatchSpec) Name() string {
	if v, ok := s.GetExactValue("name"); ok {
		return v
	}
	return "*"
}

// Optional reports whether the constraint is optional.
func (s *MatchSpec) Optional() bool { return s.optional }

// Target returns the opaque target value, if any.
func (s *MatchSpec) Target() string { return s.target }

// OriginalSpecStr returns the string the spec was parsed from, or ""
// if it was built from fields.
func (s *MatchSpec) OriginalSpecStr() string { return s.original }

// HasField reports whether the spec constrains the named field.
func (s *MatchSpec) HasField(field string) bool {
	_, have := s.components[field]
	return have
}

// GetRawValue returns the raw constraint on a field.
func (s *MatchSpec) GetRawValue(field string) (string, bool) {
	m, have := s.components[field]
	if !have {
		return "", false
	}
	return m.Raw(), true
}

// GetExactValue returns the field's value if the spec pins it to
// exactly one.
func (s *MatchSpec) GetExactValue(field string) (string, bool) {
	m, have := s.components[field]
	if !have {
		return "", false
	}
	return m.ExactValue()
}

// IsNameOnlySpec reports whether the spec constrains nothing but an
// exact name.
func (s *MatchSpec) IsNameOnlySpec() bool {
	if len(s.components) != 1 {
		return false
	}
	_, have := s.components["name"]
	return have && s.Name() != "*"
}

// Match tests a record against every constrained field.  A field the
// record doesn't have is a non-match.
func (s *MatchSpec) Match(rec Record) bool {
	for field, m := range s.components {
		v, have := rec.Field(field)
		if !have || !m.Match(v) {
			return false
		}
	}
	return true
}

// HashKey identifies the spec for grouping: two specs with the same
// HashKey are interchangeable.
func (s *MatchSpec) HashKey() string {
	return s.canonical() + "\x00" + s.target + map[bool]string{false: "", true: "\x00optional"}[s.optional]
}

// String renders the canonical form:
//
//	(channel(/subdir)::)name(version(=build))[key1=value1,...]
//
// An exact version renders as '==version' outside the brackets, a
// fuzzy trailing-wildcard version as '=version' with the wildcard
// stripped, and operator expressions go in quoted brackets.  The
// build joins the version with '=' only after an exact version.
// Parsing the canonical string reproduces an equivalent spec.
func (s *MatchSpec) String() string {
	out := s.canonical()
	if s.optional || s.target != "" {
		var opts []string
		if s.target != "" {
			opts = append(opts, "target="+s.target)
		}
		if s.optional {
			opts = append(opts, "optional")
		}
		out += "(" + strings.Join(opts, ",") + ")"
	}
	return out
}

func (s *MatchSpec) canonical() string {
	var builder, brackets []string

	channelMatcher := s.components["channel"]
	channelExact := false
	if channelMatcher != nil {
		if _, ok := channelMatcher.ExactValue(); ok {
			channelExact = true
			builder = append(builder, channelMatcher.String())
		} else if channelMatcher.Raw() != "*" {
			brackets = append(brackets, "channel="+channelMatcher.String())
		}
	}

	if subdirMatcher := s.components["subdir"]; subdirMatcher != nil {
		if channelExact {
			builder = append(builder, "/"+subdirMatcher.String())
		} else {
			brackets = append(brackets, "subdir="+subdirMatcher.String())
		}
	}

	name := "*"
	if nameMatcher := s.components["name"]; nameMatcher != nil {
		name = nameMatcher.String()
	}
	if len(builder) > 0 {
		builder = append(builder, "::"+name)
	} else {
		builder = append(builder, name)
	}

	version, haveVersion := s.GetRawValue("version")
	build, haveBuild := s.GetRawValue("build")
	versionExact := false
	if haveVersion {
		switch {
		case strings.ContainsAny(version, "><$^|,"):
			brackets = append(brackets, "version='"+version+"'")
		case strings.HasPrefix(version, "!=") || strings.HasPrefix(version, "~="):
			if haveBuild {
				brackets = append(brackets, "version='"+version+"'")
			} else {
				builder = append(builder, version)
			}
		case strings.HasSuffix(version, ".*"):
			builder = append(builder, "="+version[:len(version)-2])
		case strings.HasSuffix(version, "*"):
			builder = append(builder, "="+version[:len(version)-1])
		case strings.HasPrefix(version, "=="):
			builder = append(builder, version)
			versionExact = true
		default:
			builder = append(builder, "=="+version)
			versionExact = true
		}
	}

	if haveBuild {
		switch {
		case strings.ContainsAny(build, "><$^|,"):
			brackets = append(brackets, "build='"+build+"'")
		case strings.Contains(build, "*"):
			brackets = append(brackets, "build="+build)
		case versionExact:
			builder = append(builder, "="+build)
		default:
			brackets = append(brackets, "build="+build)
		}
	}

	skip := map[string]bool{
		"channel": true, "subdir": true, "name": true,
		"version": true, "build": true,
	}
	if s.HasField("url") && s.HasField("fn") {
		skip["fn"] = true
	}
	for _, field := range FieldNames {
		if skip[field] {
			continue
		}
		m, have := s.components[field]
		if !have {
			continue
		}
		if field == "url" && channelMatcher != nil {
			// the channel already locates the package
			continue
		}
		value := m.String()
		if strings.ContainsAny(value, ", =") {
			brackets = append(brackets, field+"='"+value+"'")
		} else {
			brackets = append(brackets, field+"="+value)
		}
	}

	if len(brackets) > 0 {
		builder = append(builder, "["+strings.Join(brackets, ",")+"]")
	}
	return strings.Join(builder, "")
}

// Merge combines specs that constrain the same package, so that each
// merged spec matches only records satisfying all of its inputs.
// Specs without an exact name pass through unmerged, after the
// merged ones.
func Merge(specs []*MatchSpec) ([]*MatchSpec, error) {
	return mergeAll(specs, false)
}

// Union combines specs per name so that each result matches records
// satisfying any of its inputs.  The combined constraints are
// textual disjunctions, not normalized.
func Union(specs []*MatchSpec) ([]*MatchSpec, error) {
	return mergeAll(specs, true)
}

func mergeAll(specs []*MatchSpec, union bool) ([]*MatchSpec, error) {
	ordered := make([]*MatchSpec, 0, len(specs))
	for _, s := range specs {
		if s != nil {
			ordered = append(ordered, s)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].String() < ordered[j].String()
	})

	type groupKey struct {
		name     string
		optional bool
	}
	var (
		groupOrder []groupKey
		groups     = map[groupKey][]*MatchSpec{}
		passThru   []*MatchSpec
	)
	for _, s := range ordered {
		name := s.Name()
		if name == "*" {
			passThru = append(passThru, s)
			continue
		}
		key := groupKey{name, s.optional}
		if _, have := groups[key]; !have {
			groupOrder = append(groupOrder, key)
		}
		groups[key] = append(groups[key], s)
	}

	merged := make([]*MatchSpec, 0, len(groupOrder)+len(passThru))
	for _, key := range groupOrder {
		group := groups[key]

		targets := map[string]bool{}
		for _, s := range group {
			if s.target != "" {
				targets[s.target] = true
			}
		}
		if len(targets) > 1 {
			names := make([]string, 0, len(group))
			for _, s := range group {
				names = append(names, s.String())
			}
			return nil, &InvalidMatchSpec{strings.Join(names, ", "),
				"incompatible merge: multiple targets"}
		}

		acc := group[0]
		var err error
		for _, s := range group[1:] {
			if acc, err = acc.mergeWith(s, union); err != nil {
				return nil, err
			}
		}
		merged = append(merged, acc)
	}
	return append(merged, passThru...), nil
}

func (s *MatchSpec) mergeWith(other *MatchSpec, union bool) (*MatchSpec, error) {
	if s.optional != other.optional || s.target != other.target {
		return nil, &InvalidMatchSpec{s.String() + ", " + other.String(),
			"incompatible merge: optional and target must agree"}
	}
	fields := map[string]string{}
	for _, field := range FieldNames {
		a, haveA := s.components[field]
		b, haveB := other.components[field]
		switch {
		case !haveA && !haveB:
		case !haveA:
			fields[field] = b.Raw()
		case !haveB:
			fields[field] = a.Raw()
		default:
			var (
				final string
				err   error
			)
			if union {
				if final, err = a.Union(b); err != nil {
					// fall back to a textual disjunction
					final = a.Raw() + "|" + b.Raw()
				}
			} else {
				if final, err = a.Merge(b); err != nil {
					return nil, err
				}
			}
			fields[field] = final
		}
	}
	return construct(fields, s.optional, s.target, "")
}
