// Package watchdog kills supervised processes that stop showing signs of life.
//
// A Watchdog tracks a set of process handles, each with its own deadline.
// Callers extend a deadline by sending a heartbeat, either explicitly through
// [Watchdog.HeartBeat] and [WatchedProcess.HeartBeat] or implicitly by reading
// from [WatchedProcess.Stdout]. A single monitor goroutine per Watchdog polls
// the set every poll interval, forgets processes that exited on their own and
// kills the ones whose deadline has passed.
//
// The monitor goroutine only exists while something is being watched. It is
// started by the first Watch call on an idle Watchdog and exits once a pass
// finds the set empty; a later Watch starts a new one.
package watchdog
