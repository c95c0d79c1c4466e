package model

// Parity is the odd/even house-number convention of one side of a street.
type Parity int

// Parity values.
const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// String returns the short code used in output properties.
func (p Parity) String() string {
	switch p {
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	default:
		return ""
	}
}

// ParityOf returns the parity of n.
func ParityOf(n int) Parity {
	if n%2 == 0 {
		return ParityEven
	}
	return ParityOdd
}

// Matches reports whether n has parity p. ParityNone matches nothing.
func (p Parity) Matches(n int) bool {
	return p != ParityNone && ParityOf(n) == p
}

// Bound is one end of an interpolation range. Number may differ from
// Point.Number after parity adjustment or extension.
type Bound struct {
	Point  AttachedPoint
	Number int
}

// BoundName identifies one of the four bounds of a Range.
type BoundName string

// Bound names.
const (
	LeftStart  BoundName = "lstart"
	LeftEnd    BoundName = "lend"
	RightStart BoundName = "rstart"
	RightEnd   BoundName = "rend"
)

// Range is the interpolation metadata of one sub-segment. A nil bound means
// no observation; when one bound of a side is set so is the other.
type Range struct {
	ParityLeft  Parity
	LeftStart   *Bound
	LeftEnd     *Bound
	ParityRight Parity
	RightStart  *Bound
	RightEnd    *Bound
}

// Get returns the bound with the given name.
func (r *Range) Get(name BoundName) *Bound {
	switch name {
	case LeftStart:
		return r.LeftStart
	case LeftEnd:
		return r.LeftEnd
	case RightStart:
		return r.RightStart
	case RightEnd:
		return r.RightEnd
	}
	return nil
}

// Set replaces the bound with the given name.
func (r *Range) Set(name BoundName, b *Bound) {
	switch name {
	case LeftStart:
		r.LeftStart = b
	case LeftEnd:
		r.LeftEnd = b
	case RightStart:
		r.RightStart = b
	case RightEnd:
		r.RightEnd = b
	}
}

// Empty reports whether the range carries no bounds.
func (r *Range) Empty() bool {
	return r.LeftStart == nil && r.LeftEnd == nil && r.RightStart == nil && r.RightEnd == nil
}

// Bounds returns the non-nil bounds in lstart, lend, rstart, rend order.
func (r *Range) Bounds() []NamedBound {
	var out []NamedBound
	for _, name := range []BoundName{LeftStart, LeftEnd, RightStart, RightEnd} {
		if b := r.Get(name); b != nil {
			out = append(out, NamedBound{Name: name, Bound: b})
		}
	}
	return out
}

// NamedBound pairs a bound with its name.
type NamedBound struct {
	Name  BoundName
	Bound *Bound
}

// Value returns the bound number, or nil for a missing bound.
func (b *Bound) Value() *int {
	if b == nil {
		return nil
	}
	n := b.Number
	return &n
}
