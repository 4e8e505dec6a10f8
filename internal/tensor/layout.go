package tensor

// Layout tags how a Value's declared dimensions are ordered.
type Layout int

// Supported layouts.
const (
	// LayoutChannelLast declares dims as (N, ..., C). It is the canonical form.
	LayoutChannelLast Layout = iota
	// LayoutChannelFirst declares dims as (N, C, ...).
	LayoutChannelFirst
)

// String returns a human-readable name for the layout.
func (l Layout) String() string {
	if l == LayoutChannelFirst {
		return "nchw"
	}
	return "nhwc"
}

// Canonical returns s in channel-last order as seen under layout l.
// For channel-first shapes of rank >= 2 the channel dimension moves from
// position 1 to the end; rank 0 and 1 shapes are returned unchanged.
func (l Layout) Canonical(s Shape) Shape {
	out := s.Clone()
	if l != LayoutChannelFirst || len(s) < 2 {
		return out
	}
	c := s[1]
	copy(out[1:], s[2:])
	out[len(out)-1] = c
	return out
}

// Logical is the inverse of Canonical.
func (l Layout) Logical(s Shape) Shape {
	out := s.Clone()
	if l != LayoutChannelFirst || len(s) < 2 {
		return out
	}
	c := s[len(s)-1]
	copy(out[2:], s[1:len(s)-1])
	out[1] = c
	return out
}
