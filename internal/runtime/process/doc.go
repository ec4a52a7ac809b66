// Package process launches local commands and exposes them as handles the
// watchdog can supervise.
//
// Full process-group termination is only guaranteed on Unix-like systems,
// where the child is started in its own process group and Kill signals every
// member of that group. On Windows only the direct child is terminated; any
// grandchildren may remain running and must be cleaned up separately by the
// caller.
package process
