package observer

import (
	"fmt"
	"time"
)

// Direction is the way a frame travels through the pipeline.
type Direction int

const (
	Downstream Direction = iota + 1
	Upstream
)

func (d Direction) String() string {
	switch d {
	case Downstream:
		return "downstream"
	case Upstream:
		return "upstream"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Processor is a node of the pipeline that pushes or receives frames.
type Processor interface {
	Name() string
}

// Frame is the payload moved between processors.
type Frame interface {
	Name() string
}

// Cloner is implemented by frames carrying mutable state. The fanout clones
// such frames once per observer so no two observers share an instance.
type Cloner interface {
	Clone() Frame
}

// Event records one frame transition from Source to Destination.
type Event struct {
	Source      Processor
	Destination Processor
	Frame       Frame
	Direction   Direction

	// Timestamp is the pipeline clock reading when the frame was pushed.
	Timestamp time.Duration
}

func (e Event) String() string {
	return fmt.Sprintf("%s -> %s: %s (%s, %s)",
		nodeName(e.Source), nodeName(e.Destination), nodeName(e.Frame), e.Direction, e.Timestamp)
}

// copyFor returns an independent delivery of e.
func (e Event) copyFor() Event {
	if c, ok := e.Frame.(Cloner); ok {
		e.Frame = c.Clone()
	}
	return e
}

func nodeName(n interface{ Name() string }) string {
	if n == nil {
		return "<nil>"
	}
	return n.Name()
}
