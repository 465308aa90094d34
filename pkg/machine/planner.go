package machine

import "time"

// block is one queued segment. Moves run back to back in queue order;
// a block with start == end is a dwell.
type block struct {
	start, end Vector
	duration   time.Duration
	velocity   float64 // mm/min while running
	line       int
	// trips is the axis whose switch closes when the block completes,
	// or -1. Homing search moves end on their switch.
	trips Axis
}

// Planner is a fixed-size queue of timed blocks that retire against a
// clock. It stands in for the motion planner and step generator: blocks
// leave the queue when their duration has elapsed, and a hold freezes
// the clock for the running block.
//
// A Planner is owned by the dispatch goroutine and is not safe for
// concurrent use.
type Planner struct {
	now  func() time.Time
	size int

	blocks   []block
	started  time.Time // start of blocks[0]
	held     bool
	heldAt   time.Time
	pos      Vector // end of the last retired block
	lastLine int
	onTrip   func(Axis)
}

// NewPlanner creates a planner with size slots.
func NewPlanner(size int, now func() time.Time) *Planner {
	if size < 1 {
		size = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Planner{now: now, size: size, blocks: make([]block, 0, size)}
}

// retire drops every block whose time is up.
func (p *Planner) retire() {
	if p.held {
		return
	}
	t := p.now()
	for len(p.blocks) > 0 {
		b := p.blocks[0]
		if t.Sub(p.started) < b.duration {
			return
		}
		p.started = p.started.Add(b.duration)
		p.pos, p.lastLine = b.end, b.line
		p.blocks = p.blocks[1:]
		if b.trips >= 0 && p.onTrip != nil {
			p.onTrip(b.trips)
		}
	}
}

// queue appends b; the caller checks HasFreeSlot first.
func (p *Planner) queue(b block) bool {
	p.retire()
	if len(p.blocks) >= p.size {
		return false
	}
	if len(p.blocks) == 0 && !p.held {
		p.started = p.now()
	}
	p.blocks = append(p.blocks, b)
	return true
}

// HasFreeSlot reports whether another block can be queued.
func (p *Planner) HasFreeSlot() bool {
	p.retire()
	return len(p.blocks) < p.size
}

// Free returns the number of unused slots.
func (p *Planner) Free() int {
	p.retire()
	return p.size - len(p.blocks)
}

// Size returns the number of slots.
func (p *Planner) Size() int { return p.size }

// Empty reports whether every queued block has run.
func (p *Planner) Empty() bool {
	p.retire()
	return len(p.blocks) == 0
}

// Held reports whether the planner is frozen by a feedhold.
func (p *Planner) Held() bool { return p.held }

// Hold freezes the running block where it is.
func (p *Planner) Hold() {
	if p.held {
		return
	}
	p.retire()
	p.held, p.heldAt = true, p.now()
}

// Resume continues from a Hold.
func (p *Planner) Resume() {
	if !p.held {
		return
	}
	p.started = p.started.Add(p.now().Sub(p.heldAt))
	p.held = false
	p.retire()
}

// Position is the interpolated position of the tool right now.
func (p *Planner) Position() Vector {
	p.retire()
	if len(p.blocks) == 0 {
		return p.pos
	}
	b := p.blocks[0]
	at := p.now()
	if p.held {
		at = p.heldAt
	}
	f := 1.0
	if b.duration > 0 {
		f = float64(at.Sub(p.started)) / float64(b.duration)
	}
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	return lerp(b.start, b.end, f)
}

// Velocity is the feed of the running block, zero when idle or held.
func (p *Planner) Velocity() float64 {
	p.retire()
	if p.held || len(p.blocks) == 0 {
		return 0
	}
	return p.blocks[0].velocity
}

// Line is the line number of the running block, or of the last block
// that ran.
func (p *Planner) Line() int {
	p.retire()
	if len(p.blocks) > 0 {
		return p.blocks[0].line
	}
	return p.lastLine
}

// Flush discards every queued block, leaving the position wherever the
// running block had got to.
func (p *Planner) Flush() {
	p.pos = p.Position()
	p.blocks = p.blocks[:0]
	p.held = false
}

// SetPosition overrides the resting position; used after homing.
func (p *Planner) SetPosition(a Axis, v float64) { p.pos[a] = v }
