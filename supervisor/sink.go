package supervisor

import (
	"context"
	"time"
)

// DefaultSource is the source label attached to readings when none is configured.
const DefaultSource = "beddit"

// Reading is one averaged sample pair, produced from one frame.
type Reading struct {
	// Time is when the frame was read.
	Time time.Time `json:"time"`
	// Source labels the sensor the reading came from.
	Source string `json:"source"`
	// Channel1 is the mean of the frame's first channel.
	Channel1 float64 `json:"channel1"`
	// Channel2 is the mean of the frame's second channel.
	Channel2 float64 `json:"channel2"`
	// PacketNumber is the device packet number of the frame.
	PacketNumber uint32 `json:"packetNumber"`
}

// Sink persists readings. Record is called synchronously from the
// supervisor loop and must return within a bounded time.
type Sink interface {
	Record(ctx context.Context, r Reading) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, r Reading) error

func (f SinkFunc) Record(ctx context.Context, r Reading) error { return f(ctx, r) }

// RadioResetHook power-cycles the radio stack after a radio-level fault.
type RadioResetHook interface {
	Trigger(ctx context.Context) error
}

// RadioResetFunc adapts a function to the RadioResetHook interface.
type RadioResetFunc func(ctx context.Context) error

func (f RadioResetFunc) Trigger(ctx context.Context) error { return f(ctx) }
