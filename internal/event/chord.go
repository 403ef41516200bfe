package event

// Scancodes involved in the two focus chords, per spec.md §4.2.
const (
	ScancodeLeftCtrl  uint16 = 0x1D
	ScancodeLeftAlt   uint16 = 0x38
	ScancodeRight     uint16 = 0xCD
	ScancodeLeftArrow uint16 = 0xCB
)

// KeyDownMap tracks the held/released state of all 256 scancode slots.
// It is not internally synchronized — spec.md §5 places the input pipeline
// on a single goroutine, so the map is owned by that goroutine alone, the
// same "single owner, no lock" posture the teacher takes for state that is
// never touched outside its owning goroutine.
type KeyDownMap [256]bool

// Update applies a Key event's press/release to the map.
func (m *KeyDownMap) Update(k Key) {
	switch k.State {
	case Pressed, Repeat:
		m[k.Scancode] = true
	case Released:
		m[k.Scancode] = false
	}
}

// Held reports whether every given scancode is currently pressed.
func (m *KeyDownMap) Held(codes ...uint16) bool {
	for _, c := range codes {
		if !m[c] {
			return false
		}
	}
	return true
}

// Direction names a focus-advance direction.
type Direction int

const (
	Next Direction = iota
	Previous
)

// ChordState is the explicit state machine spec.md §9 recommends in place
// of ad-hoc booleans.
type ChordState int

const (
	ChordIdle ChordState = iota
	ChordPartial
	ChordArmed
	ChordFired
)

// ChordDetector recognizes one focus-advance chord (CTRL+ALT+RIGHT or
// CTRL+ALT+LEFT) against a shared KeyDownMap. It re-arms as soon as any
// member of the chord has been released, per spec.md §4.2's
// "press-release-press retriggers" rule (testable property 7 in spec.md §8).
//
// State meaning:
//   - Idle: no chord member is held.
//   - Partial: some but not all members are held.
//   - Armed: reserved transitional state, folded into Fired below (a
//     detector reports Fired the instant all members are first observed
//     held, so Armed and Fired share the same observable instant here).
//   - Fired: all members are held and the chord already triggered once for
//     this hold; it will not fire again until the map passes back through
//     Partial or Idle (at least one member released).
type ChordDetector struct {
	dir   Direction
	codes [3]uint16
	state ChordState
}

// NewChordDetector builds a detector for the focus-next or focus-previous chord.
func NewChordDetector(dir Direction) *ChordDetector {
	arrow := ScancodeRight
	if dir == Previous {
		arrow = ScancodeLeftArrow
	}
	return &ChordDetector{
		dir:   dir,
		codes: [3]uint16{ScancodeLeftCtrl, ScancodeLeftAlt, arrow},
		state: ChordIdle,
	}
}

// Direction reports which focus-advance direction this detector recognizes.
func (d *ChordDetector) Direction() Direction { return d.dir }

// State reports the detector's current ChordState, for logging/debugging.
func (d *ChordDetector) State() ChordState { return d.state }

// OnKey advances the detector's state machine against the current map. The
// input pipeline calls it after KeyDownMap.Update for a press; for a
// release it calls it once before Update (spec.md §4.2's press/release
// asymmetry) and once after, so the detector observes the member going up.
//
// Fired reports true exactly once per distinct chord activation: a
// continued hold never re-fires, and at least one member must be released
// before a fresh all-members-down transition fires again.
func (d *ChordDetector) OnKey(m *KeyDownMap) (fired bool) {
	switch {
	case m.Held(d.codes[:]...):
		if d.state != ChordFired {
			d.state = ChordFired
			return true
		}
	case anyHeld(m, d.codes[:]):
		d.state = ChordPartial
	default:
		d.state = ChordIdle
	}
	return false
}

func anyHeld(m *KeyDownMap, codes []uint16) bool {
	for _, c := range codes {
		if m[c] {
			return true
		}
	}
	return false
}
