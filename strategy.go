package liteservenv

import "github.com/giantswarm/liteservenv/internal/core"

// ReleaseStrategy controls what happens when an Instance is released back to
// the pool.
//
// It is an alias, so the IsValid and String methods of the underlying core
// type are part of the public API.
type ReleaseStrategy = core.ReleaseStrategy

const (
	// ReleaseRestart stops the instance. The next Acquire starts it again
	// with its data directory reset to the seed. This is the default.
	ReleaseRestart = core.ReleaseRestart

	// ReleaseClean deletes every database that is not part of the seed and
	// keeps the instance running. Faster than ReleaseRestart; changes made
	// inside seeded databases survive.
	ReleaseClean = core.ReleaseClean

	// ReleaseNone returns the instance as-is. Use only when tests pick
	// unique database names and never share state.
	ReleaseNone = core.ReleaseNone
)
