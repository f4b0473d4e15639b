// Package packmule provides package-specification matching and
// dependency-graph machinery for conda-style package prefixes.
//
// The query language is in package 'matchspec', the dependency graph
// is in package 'graph', and some command-line tools are in 'cmd'.
//
// See https://github.com/Comcast/packmule/blob/master/README.md for more.
package packmule
