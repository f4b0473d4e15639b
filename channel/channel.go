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

// Package channel resolves channel names and URLs to canonical
// channel identities.
//
// A channel is a directory tree of packages, addressed either by a
// short name ('conda-forge'), by a name with a platform subdirectory
// ('conda-forge/linux-64'), or by a full URL.  Identity comparisons
// happen on the canonical name, so 'conda-forge' and
// 'https://conda.anaconda.org/conda-forge/noarch' denote the same
// channel.
package channel

import (
	"net/url"
	"strings"
)

// DefaultAliasLocation hosts channels that are addressed by bare
// name.
const DefaultAliasLocation = "conda.anaconda.org"

// DefaultsLocation hosts the 'pkgs/*' channels that together make up
// the 'defaults' multichannel.
const DefaultsLocation = "repo.anaconda.com"

// UnknownName is the canonical name of the unknown channel, which
// records without provenance carry.
const UnknownName = "<unknown>"

// KnownSubdirs are the platform subdirectories a channel can have.
var KnownSubdirs = []string{
	"noarch",
	"linux-32", "linux-64", "linux-aarch64", "linux-armv6l",
	"linux-armv7l", "linux-ppc64", "linux-ppc64le", "linux-s390x",
	"osx-64", "osx-arm64",
	"win-32", "win-64", "win-arm64",
	"zos-z",
}

// MultiChannels maps a multichannel alias to its member channel
// names.  A spec naming the alias matches records from any member.
var MultiChannels = map[string][]string{
	"defaults": {"pkgs/main", "pkgs/free", "pkgs/r", "pkgs/pro"},
}

// A Channel is a resolved channel identity.
//
// A Channel is immutable once constructed.
type Channel struct {
	// Scheme and Location are empty for channels given by bare
	// name.
	Scheme   string
	Location string

	// Name is the channel name (possibly with a path, as in
	// 'pkgs/main').
	Name string

	// Subdir is the platform subdirectory, if one was given.
	Subdir string
}

// Unknown is the channel of records without provenance.
var Unknown = &Channel{Name: UnknownName}

func isKnownSubdir(s string) bool {
	for _, sub := range KnownSubdirs {
		if s == sub {
			return true
		}
	}
	return false
}

// Parse resolves a channel name or URL.
//
// Parse never fails on a name form.  A URL form fails only if it
// cannot be parsed as a URL at all.
func Parse(value string) (*Channel, error) {
	value = strings.TrimSpace(value)
	switch value {
	case "", UnknownName, "None", "none":
		return Unknown, nil
	}

	if strings.Contains(value, "://") {
		u, err := url.Parse(value)
		if err != nil {
			return nil, err
		}
		c := &Channel{Scheme: u.Scheme, Location: u.Host}
		parts := splitPath(u.Path)
		if n := len(parts); n > 0 && isKnownSubdir(parts[n-1]) {
			c.Subdir = parts[n-1]
			parts = parts[:n-1]
		}
		c.Name = strings.Join(parts, "/")
		if c.Name == "" {
			c.Name = UnknownName
		}
		return c, nil
	}

	parts := splitPath(value)
	c := &Channel{}
	if n := len(parts); n > 1 && isKnownSubdir(parts[n-1]) {
		c.Subdir = parts[n-1]
		parts = parts[:n-1]
	}
	c.Name = strings.Join(parts, "/")
	return c, nil
}

func splitPath(p string) []string {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// CanonicalName returns the name used for identity comparisons:
// multichannel members collapse to their alias, and channels outside
// the well-known locations keep their location as a prefix.
func (c *Channel) CanonicalName() string {
	for alias, members := range MultiChannels {
		for _, member := range members {
			if c.Name == member {
				return alias
			}
		}
	}
	switch c.Location {
	case "", DefaultAliasLocation, DefaultsLocation:
		return c.Name
	}
	return c.Location + "/" + c.Name
}

// BaseURL returns the channel URL without a subdir.
func (c *Channel) BaseURL() string {
	if c.Name == UnknownName {
		return ""
	}
	scheme, location := c.Scheme, c.Location
	if location == "" {
		scheme, location = "https", DefaultAliasLocation
		if strings.HasPrefix(c.Name, "pkgs/") {
			location = DefaultsLocation
		}
	}
	return scheme + "://" + location + "/" + c.Name
}

// URL returns the channel URL including the subdir, when one is
// known.
func (c *Channel) URL() string {
	base := c.BaseURL()
	if base == "" || c.Subdir == "" {
		return base
	}
	return base + "/" + c.Subdir
}

// String returns the most compact form that still round-trips
// through Parse to the same identity.
func (c *Channel) String() string {
	switch c.Location {
	case "", DefaultAliasLocation, DefaultsLocation:
		return c.Name
	}
	return c.BaseURL()
}

// Matches reports whether a record from channel o satisfies a spec
// naming channel c.  The test is asymmetric: 'defaults' matches a
// record from 'pkgs/free', but 'pkgs/free' does not match a record
// labeled 'defaults::'.
func (c *Channel) Matches(o *Channel) bool {
	return c.Name == o.Name || c.Name == o.CanonicalName()
}
