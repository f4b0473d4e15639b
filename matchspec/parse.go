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
	"regexp"
	"strings"
	"sync"

	"github.com/dlclark/regexp2"

	"github.com/Comcast/packmule/channel"
	"github.com/Comcast/packmule/util"
)

// Package archive extensions, newest first.
var packageExtensions = []string{".conda", ".tar.bz2"}

var (
	bracketsRe = regexp.MustCompile(`.*(\[.*\])`)
	parensRe   = regexp.MustCompile(`.*(\(.*\))`)

	// Bracket key-value pairs: values may be quoted, and the
	// closing quote must match the opening one, which takes a
	// backreference.
	keyValueRe = regexp2.MustCompile(`([a-zA-Z0-9_-]+?)=(["']?)([^'"]*?)(\2)(?:[, ]|$)`, 0)

	// The name is everything up to the first operator or space.
	nameSplitRe = regexp.MustCompile(`^([^ =<>!~]+)?([><!=~ ].+)?`)

	// Splits '>=1.0 , < 2.0 py34_0' into version and build.  The
	// build token is whatever trails the version after a space or
	// bare '=', where "bare" means not part of an operator, which
	// takes a lookbehind.
	versionBuildRe = regexp2.MustCompile(`((?:.+?)[^><!,|]?)(?:(?<![=!|,<>~])(?:[ =])([^-=,|<>~]+?))?$`, 0)
)

// parsed is the outcome of parsing one spec string.
type parsed struct {
	fields   map[string]string
	optional bool
	target   string
}

var (
	parseCache   = make(map[string]*parsed)
	parseCacheMu sync.Mutex
)

func parseSpecStr(specStr string) (*parsed, error) {
	parseCacheMu.Lock()
	if p, have := parseCache[specStr]; have {
		parseCacheMu.Unlock()
		return p, nil
	}
	parseCacheMu.Unlock()

	p, err := parseSpecStrUncached(specStr)
	if err != nil {
		return nil, err
	}

	parseCacheMu.Lock()
	parseCache[specStr] = p
	parseCacheMu.Unlock()

	return p, nil
}

func parseSpecStrUncached(specStr string) (*parsed, error) {
	original := specStr

	// ugly backward compat: a trailing '@' names a track_features
	// spec
	if strings.HasSuffix(specStr, "@") {
		return &parsed{fields: map[string]string{
			"name":           "*",
			"track_features": specStr[:len(specStr)-1],
		}}, nil
	}

	// Step 1. strip '#' comment
	if ndx := strings.Index(specStr, "#"); ndx >= 0 {
		specStr = strings.TrimSpace(specStr[:ndx])
	}

	// Step 1b. strip ' if ', anticipating future compatibility
	// issues
	if split := strings.SplitN(specStr, " if ", 2); len(split) > 1 {
		util.Logf("ignoring conditional in spec %s", specStr)
		specStr = split[0]
	}

	// Step 2. done if the spec is a package file or URL
	if isPackageFile(specStr) {
		return parsePackageFile(specStr)
	}

	// Step 3. strip off the brackets portion
	brackets := map[string]string{}
	if m := bracketsRe.FindStringSubmatch(specStr); m != nil {
		bracketsStr := m[1]
		specStr = strings.ReplaceAll(specStr, bracketsStr, "")
		pairs, err := keyValuePairs(bracketsStr[1 : len(bracketsStr)-1])
		if err != nil {
			return nil, &InvalidMatchSpec{original, "bad key-value pairs in brackets"}
		}
		for key, value := range pairs {
			if key == "" || value == "" {
				return nil, &InvalidMatchSpec{original, "key-value mismatch in brackets"}
			}
			brackets[key] = value
		}
	}

	// Step 4. strip off the parens portion, which can carry
	// 'optional' and 'target'
	var (
		optional bool
		target   string
	)
	if m := parensRe.FindStringSubmatch(specStr); m != nil {
		parensStr := m[1]
		specStr = strings.ReplaceAll(specStr, parensStr, "")
		inner := parensStr[1 : len(parensStr)-1]
		pairs, err := keyValuePairs(inner)
		if err != nil {
			return nil, &InvalidMatchSpec{original, "bad key-value pairs in parens"}
		}
		target = pairs["target"]
		optional = strings.Contains(inner, "optional")
	}

	// Step 5. strip off the 'channel[/subdir]::namespace:' prefix.
	// The namespace slot is accepted for forward compatibility but
	// not stored.
	var channelStr string
	switch m := rsplit(specStr, ":", 2); len(m) {
	case 3:
		channelStr, specStr = m[0], m[2]
	case 2:
		specStr = m[1]
	default:
		specStr = m[0]
	}
	channelName, haveChannel, subdir := parseChannelStr(channelStr)
	if b, have := brackets["channel"]; have {
		delete(brackets, "channel")
		bName, bHave, bSubdir := parseChannelStr(b)
		if bHave {
			channelName, haveChannel = bName, true
		}
		if bSubdir != "" {
			subdir = bSubdir
		}
	}
	if b, have := brackets["subdir"]; have {
		delete(brackets, "subdir")
		subdir = b
	}

	// Step 6. strip the package name off the remaining
	// version + build
	m := nameSplitRe.FindStringSubmatch(specStr)
	name, rest := m[1], m[2]
	if name == "" {
		return nil, &InvalidMatchSpec{original, "no package name found in '" + specStr + "'"}
	}

	// Step 7. sort out version + build
	var version, build string
	haveVersion, haveBuild := false, false
	rest = strings.TrimSpace(rest)
	if rest != "" {
		if strings.Contains(rest, "[") {
			return nil, &InvalidMatchSpec{original, "multiple brackets sections not allowed"}
		}
		version, build, haveBuild = parseVersionPlusBuild(rest)
		haveVersion = true

		// A version of '=' or '==' with nothing after it passes
		// through here and fails version parsing later, which is
		// the error we want.
		if version != "=" && version != "==" && version[0] == '=' {
			// translate version '=1.2.3' to '1.2.3*'
			testStr := version[1:]
			if strings.HasPrefix(version, "==") && !haveBuild {
				version = version[2:]
			} else if !strings.ContainsAny(testStr, "=,|") {
				if !haveBuild && testStr[len(testStr)-1] != '*' {
					version = testStr + "*"
				} else {
					version = testStr
				}
			}
		}
	}

	// Step 8. compile the components together
	fields := map[string]string{"name": name}
	if haveChannel {
		fields["channel"] = channelName
	}
	if subdir != "" {
		fields["subdir"] = subdir
	}
	if haveVersion {
		fields["version"] = version
	}
	if haveBuild {
		fields["build"] = build
	}

	// A 'name' in brackets never overrides a name outside.
	// Otherwise 'tensorflow[name=pytorch]' would appear to install
	// one package while actually installing another.
	if bName, have := brackets["name"]; have {
		util.Warnf("'name' specified both inside (%s) and outside (%s) of brackets; using the outside value",
			bName, fields["name"])
		delete(brackets, "name")
	}
	for key, value := range brackets {
		fields[key] = value
	}

	return &parsed{fields: fields, optional: optional, target: target}, nil
}

// keyValuePairs parses a comma- or space-delimited 'key=value' list,
// values optionally quoted.
func keyValuePairs(s string) (map[string]string, error) {
	pairs := map[string]string{}
	m, err := keyValueRe.FindStringMatch(s)
	if err != nil {
		return nil, err
	}
	for m != nil {
		groups := m.Groups()
		pairs[groups[1].Capture.String()] = groups[3].Capture.String()
		if m, err = keyValueRe.FindNextMatch(m); err != nil {
			return nil, err
		}
	}
	return pairs, nil
}

// rsplit splits s on sep at most n times, starting from the right.
func rsplit(s, sep string, n int) []string {
	parts := strings.Split(s, sep)
	if len(parts) <= n+1 {
		return parts
	}
	head := strings.Join(parts[:len(parts)-n], sep)
	return append([]string{head}, parts[len(parts)-n:]...)
}

func parseChannelStr(channelVal string) (name string, have bool, subdir string) {
	if channelVal == "" {
		return "", false, ""
	}
	c, err := channel.Parse(channelVal)
	if err != nil {
		return channelVal, true, ""
	}
	name = c.Name
	if name == "" || name == channel.UnknownName {
		name = c.BaseURL()
		if name == "" {
			name = channelVal
		}
	}
	return name, true, c.Subdir
}

// parseVersionPlusBuild pulls the build string out of a
// version + build combo:
//
//	"=1.2.3 0"            -> ("=1.2.3", "0")
//	"1.2.3=0"             -> ("1.2.3", "0")
//	">=1.0 , < 2.0 py34_0" -> (">=1.0,<2.0", "py34_0")
//	">1.8,<2|==1.7"       -> (">1.8,<2|==1.7", none)
//	"* openblas_0"        -> ("*", "openblas_0")
func parseVersionPlusBuild(vPlusB string) (version, build string, haveBuild bool) {
	m, err := versionBuildRe.FindStringMatch(vPlusB)
	if err != nil || m == nil {
		return strings.ReplaceAll(vPlusB, " ", ""), "", false
	}
	groups := m.Groups()
	version = strings.ReplaceAll(groups[1].Capture.String(), " ", "")
	if len(groups[2].Captures) > 0 {
		return version, strings.TrimSpace(groups[2].Capture.String()), true
	}
	return version, "", false
}

func isPackageFile(s string) bool {
	for _, ext := range packageExtensions {
		if strings.HasSuffix(s, ext) {
			return true
		}
	}
	return false
}

func stripPkgExtension(s string) string {
	for _, ext := range packageExtensions {
		if strings.HasSuffix(s, ext) {
			return s[:len(s)-len(ext)]
		}
	}
	return s
}

// parseLegacyDist splits 'name-version-build' from the right, so
// names may themselves contain dashes.
func parseLegacyDist(distStr string) (name, version, build string, err error) {
	parts := rsplit(stripPkgExtension(distStr), "-", 2)
	if len(parts) != 3 {
		return "", "", "", &InvalidMatchSpec{distStr, "not a name-version-build dist string"}
	}
	return parts[0], parts[1], parts[2], nil
}

// parsePackageFile handles spec strings that are package archives:
// a channel URL yields a fully pinned spec, anything else an opaque
// filename-only spec.
func parsePackageFile(specStr string) (*parsed, error) {
	if strings.Contains(specStr, "://") {
		u := specStr
		if ndx := strings.LastIndex(u, "/"); ndx >= 0 {
			fn := u[ndx+1:]
			dir := u[:ndx]
			c, err := channel.Parse(dir)
			if err == nil && c.Subdir != "" {
				name, version, build, err := parseLegacyDist(fn)
				if err != nil {
					return nil, err
				}
				return &parsed{fields: map[string]string{
					"channel": c.CanonicalName(),
					"subdir":  c.Subdir,
					"name":    name,
					"version": version,
					"build":   build,
					"fn":      fn,
					"url":     specStr,
				}}, nil
			}
		}
		// a URL that is not a channel
		return &parsed{fields: map[string]string{
			"name": "*",
			"fn":   basename(specStr),
			"url":  specStr,
		}}, nil
	}
	// a local path
	return &parsed{fields: map[string]string{
		"name": "*",
		"fn":   basename(specStr),
		"url":  specStr,
	}}, nil
}

func isKnownSubdir(s string) bool {
	for _, sub := range channel.KnownSubdirs {
		if s == sub {
			return true
		}
	}
	return false
}

func basename(s string) string {
	if ndx := strings.LastIndexAny(s, `/\`); ndx >= 0 {
		return s[ndx+1:]
	}
	return s
}
