package main

import (
	"time"

	"strokesync/limits"
	"strokesync/stroker"
)

// StateBroadcast is a state change the session publishes for observers
// (the WebSocket broadcaster). Sends are non-blocking; observers that fall
// behind miss updates rather than stall the session.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastPositions carries the latest bounded output of every driven axis.
type BroadcastPositions struct {
	Positions map[stroker.Axis]float64
	Playhead  time.Duration
	At        time.Time
}

// BroadcastLimitsChanged is emitted after a limit request is applied.
type BroadcastLimitsChanged struct {
	Axis   stroker.Axis
	Limits limits.Config
	At     time.Time
}

// BroadcastSessionState is emitted when connection, pause or the loaded
// script set changes.
type BroadcastSessionState struct {
	Connected  bool
	Paused     bool
	Device     string
	Axes       []stroker.Axis
	LoadedFrom string
	At         time.Time
}

func (BroadcastPositions) broadcastMarker()     {}
func (BroadcastLimitsChanged) broadcastMarker() {}
func (BroadcastSessionState) broadcastMarker()  {}
