// Package liteserv manages a LiteServ child process: it builds the command
// line, starts the binary, reports readiness once the listening line shows up
// on stderr, optionally confirms it over HTTP, and stops the child.
//
// It also carries a small REST client for the database endpoints the pool
// needs between tests.
package liteserv
