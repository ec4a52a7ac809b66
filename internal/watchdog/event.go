package watchdog

import "time"

// EventType identifies a transition observed by the watchdog.
//
// EventExpired is emitted right before the kill attempt and is followed by
// EventKillFailed when Kill returns an error.
type EventType string

const (
	EventWatched    EventType = "watched"
	EventUnwatched  EventType = "unwatched"
	EventHeartBeat  EventType = "heartbeat"
	EventExited     EventType = "exited"
	EventExpired    EventType = "expired"
	EventKillFailed EventType = "kill_failed"
	EventIdle       EventType = "idle"
)

// Event is delivered to the hook installed with [WithEventHook].
type Event struct {
	Timestamp time.Time
	Type      EventType
	// Process is nil for EventIdle.
	Process *WatchedProcess
	Err     error
}
