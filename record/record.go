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

// Package record defines the package record that specs match against
// and graphs are built from.
package record

import (
	"strconv"
	"strings"

	"github.com/Comcast/packmule/channel"
)

// A Package is one installed or installable package record, as found
// in a prefix's metadata or a channel's repodata.
type Package struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Build       string `json:"build,omitempty" yaml:"build,omitempty"`
	BuildNumber int    `json:"build_number,omitempty" yaml:"build_number,omitempty"`

	Channel string `json:"channel,omitempty" yaml:"channel,omitempty"`
	Subdir  string `json:"subdir,omitempty" yaml:"subdir,omitempty"`

	// Depends are the required dependencies, each a spec string.
	// Constrains are optional restrictions on other packages.
	Depends    []string `json:"depends,omitempty" yaml:"depends,omitempty"`
	Constrains []string `json:"constrains,omitempty" yaml:"constrains,omitempty"`

	TrackFeatures string `json:"track_features,omitempty" yaml:"track_features,omitempty"`
	Features      string `json:"features,omitempty" yaml:"features,omitempty"`

	// NoArch is "python" or "generic" for platform-independent
	// packages.
	NoArch string `json:"noarch,omitempty" yaml:"noarch,omitempty"`

	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	Fn  string `json:"fn,omitempty" yaml:"fn,omitempty"`

	MD5    string `json:"md5,omitempty" yaml:"md5,omitempty"`
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`

	License       string `json:"license,omitempty" yaml:"license,omitempty"`
	LicenseFamily string `json:"license_family,omitempty" yaml:"license_family,omitempty"`
}

// Field returns the value of the named spec field, which is an int
// for "build_number" and a string for everything else.  The second
// return is false for a field name that records don't have.
func (p *Package) Field(name string) (interface{}, bool) {
	switch name {
	case "name":
		return p.Name, true
	case "version":
		return p.Version, true
	case "build":
		return p.Build, true
	case "build_number":
		return p.BuildNumber, true
	case "channel":
		return p.Channel, true
	case "subdir":
		return p.Subdir, true
	case "track_features":
		return p.TrackFeatures, true
	case "features":
		return p.Features, true
	case "url":
		return p.URL, true
	case "fn":
		return p.Fn, true
	case "md5":
		return p.MD5, true
	case "sha256":
		return p.SHA256, true
	case "license":
		return p.License, true
	case "license_family":
		return p.LicenseFamily, true
	}
	return nil, false
}

// DistStr renders the record as channel::name-version-build, which
// is how records are named in diagnostics.
func (p *Package) DistStr() string {
	base := p.Name + "-" + p.Version + "-" + p.Build
	if p.Channel == "" {
		return base
	}
	c, err := channel.Parse(p.Channel)
	if err != nil {
		return p.Channel + "::" + base
	}
	return c.CanonicalName() + "::" + base
}

// Key identifies the record for graph and map purposes.  Two records
// that agree on channel, subdir, name, version, build, and build
// number are the same record, even if they differ in other fields
// (license, md5, and so on): the dist string is unique in practice,
// so the identity is deliberately narrower than whole-record
// equality.
func (p *Package) Key() string {
	return p.DistStr() + "/" + p.Subdir + "#" + strconv.Itoa(p.BuildNumber)
}

func (p *Package) String() string {
	return p.DistStr()
}

// IsNoArchPython reports whether the record is a noarch python
// package, which changes its graph ordering on Windows.
func (p *Package) IsNoArchPython() bool {
	return strings.EqualFold(p.NoArch, "python")
}

// CombinedDepends returns depends followed by constrains, which is
// what feature-surrogate matching walks.
func (p *Package) CombinedDepends() []string {
	acc := make([]string, 0, len(p.Depends)+len(p.Constrains))
	acc = append(acc, p.Depends...)
	return append(acc, p.Constrains...)
}
