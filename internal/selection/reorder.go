package selection

// MoveFile returns a copy of items with the element at from relocated to to.
// Relative order of every other element is preserved. Out-of-range indices
// and from == to return an unchanged copy.
func MoveFile[T any](items []T, from, to int) []T {
	out := make([]T, len(items))
	copy(out, items)
	if from == to || !inRange(from, len(items)) || !inRange(to, len(items)) {
		return out
	}

	moved := out[from]
	if from < to {
		copy(out[from:to], out[from+1:to+1])
	} else {
		copy(out[to+1:from+1], out[to:from])
	}
	out[to] = moved
	return out
}

// Drag adapts a pointer or keyboard drag gesture onto Set.Move. It follows the
// dragged element as it moves so that hovering the same target repeatedly is a
// no-op and crossing several targets quickly still lands the element where the
// gesture ends.
type Drag struct {
	set     *Set
	current int
	active  bool
}

// NewDrag binds a drag adapter to set.
func NewDrag(set *Set) *Drag {
	return &Drag{set: set, current: -1}
}

// Begin starts dragging the element at index.
func (d *Drag) Begin(index int) bool {
	if !inRange(index, d.set.Len()) {
		return false
	}
	d.current = index
	d.active = true
	return true
}

// Over moves the dragged element onto target. Calls outside a drag or with an
// invalid target are ignored.
func (d *Drag) Over(target int) {
	if !d.active || target == d.current {
		return
	}
	if err := d.set.Move(d.current, target); err != nil {
		return
	}
	d.current = target
}

// End finishes the gesture and returns the element's final index.
func (d *Drag) End() int {
	final := d.current
	d.active = false
	d.current = -1
	return final
}

// Active reports whether a drag is in progress.
func (d *Drag) Active() bool { return d.active }

// Index returns the dragged element's current position, or -1.
func (d *Drag) Index() int { return d.current }
