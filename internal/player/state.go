package player

import (
	"errors"
	"time"
)

// ErrPlayback marks media engine failures.
var ErrPlayback = errors.New("playback error")

// State is the playback state of a session.
type State int

const (
	StateIdle State = iota
	StateBuffering
	StateReady
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StateReady:
		return "ready"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is reported by a media engine and consumed by Controller.Apply.
type Event interface {
	isEvent()
}

// StateChanged reports an engine state transition. Engines only report
// Idle, Buffering, Ready and Ended; Failed is decided by the controller.
type StateChanged struct {
	State State
}

// PlaybackError reports a failure of the current media source.
type PlaybackError struct {
	Err error
}

// RenderedFirstFrame reports that output started at Position.
type RenderedFirstFrame struct {
	Position time.Duration
}

func (StateChanged) isEvent()       {}
func (PlaybackError) isEvent()      {}
func (RenderedFirstFrame) isEvent() {}

// Notification is published to subscribers after every applied event.
type Notification struct {
	State   State
	Attempt int    // retries used so far
	Message string // text shown to the user, empty when none
	Err     error
}
