// Package core implements the LiteServ pool behind the liteservenv package.
// It holds the Manager (a state machine with two-phase initialization and
// parallel shutdown), the Pool (a bounded LIFO of instances with
// double-release detection) and the Instance (a lazily started LiteServ
// process seeded from the seed cache and cleaned on release).
package core
