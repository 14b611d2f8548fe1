// Package seedcache builds a validated, content-addressed copy of a
// directory of seed databases.
//
// The cache entry is named after a hash of the seed files, so every test
// binary sharing a cache directory reuses one validated copy and rebuilds it
// only when a seed changes. A file lock serializes concurrent builders.
package seedcache
