package types

import (
	"time"

	"thermalguard/internal/geometry"
)

// Frame is one thermal camera observation published by a capture device.
type Frame struct {
	DeviceID  string           `json:"device_id"`
	Timestamp time.Time        `json:"timestamp"`
	MaxPixel  *float64         `json:"max_pixel,omitempty"`
	People    []geometry.Point `json:"people,omitempty"`
}

// Event reports the result of an action taken in response to a frame.
type Event struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Kind      string    `json:"kind"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
