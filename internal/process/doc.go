// Package process runs and stops the external LiteServ binary.
//
// BaseProcess owns the single cmd.Wait goroutine of a child, tees its stderr
// into caller-supplied sinks and per-process log files, and stops it with
// SIGTERM escalating to SIGKILL. WaitReady polls a readiness check while
// watching for early exit.
package process
