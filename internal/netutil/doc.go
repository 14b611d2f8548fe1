// Package netutil hands out loopback ports for LiteServ children.
//
// A port the kernel reports as free is only free until someone binds it, and
// a LiteServ child binds its port well after the launcher picked it. The
// PortRegistry closes the in-process half of that race by remembering every
// port it has handed out until the owner releases it.
package netutil
