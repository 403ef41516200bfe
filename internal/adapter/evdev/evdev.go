// Package evdev implements adapter.InputBackend by reading raw Linux input
// events (struct input_event, as documented in linux/input.h) off a
// /dev/input/eventN device and pushing them into an adapter.Sink. Built
// thin per spec.md §1's scoping of backends as external collaborators.
package evdev

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/xfeldman/qips/internal/adapter"
	"github.com/xfeldman/qips/internal/event"
)

// Linux input event types/codes this backend cares about (linux/input-event-codes.h).
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	relX = 0x00
	relY = 0x01
	relZ = 0x02

	absX = 0x00
	absY = 0x01
)

// inputEventSize is sizeof(struct input_event) on a 64-bit Linux host:
// two timeval fields (16 bytes) + type/code/value (8 bytes).
const inputEventSize = 24

// Backend reads one evdev device and feeds decoded events to a Sink.
type Backend struct {
	devicePath string
	sink       adapter.Sink
	f          *os.File
	done       chan struct{}
}

// New constructs a Backend reading devicePath and dispatching to sink.
func New(devicePath string, sink adapter.Sink) *Backend {
	return &Backend{devicePath: devicePath, sink: sink, done: make(chan struct{})}
}

func (b *Backend) Init() error {
	f, err := os.Open(b.devicePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", b.devicePath, err)
	}
	b.f = f
	go b.readLoop()
	return nil
}

func (b *Backend) Cleanup() error {
	close(b.done)
	if b.f == nil {
		return nil
	}
	return b.f.Close()
}

// readLoop decodes raw input_event records and translates them into the
// pipeline's push entry points. evdev's key code is passed through
// unchanged as the scancode that the chord detector and SendKeycodeArgs
// operate on. It matches the chord's left-ctrl and left-alt codes (0x1D,
// 0x38), but evdev numbers the left and right arrow keys 105 and 106, not
// the chord's 0xCB and 0xCD.
func (b *Backend) readLoop() {
	buf := make([]byte, inputEventSize)
	var dx, dy, dz int32
	for {
		if _, err := io.ReadFull(b.f, buf); err != nil {
			return
		}

		typ := binary.LittleEndian.Uint16(buf[16:18])
		code := binary.LittleEndian.Uint16(buf[18:20])
		value := int32(binary.LittleEndian.Uint32(buf[20:24]))
		sec := int64(binary.LittleEndian.Uint64(buf[0:8]))
		usec := int64(binary.LittleEndian.Uint64(buf[8:16]))
		ts := sec*1e9 + usec*1e3

		switch typ {
		case evKey:
			state := event.Released
			switch value {
			case 1:
				state = event.Pressed
			case 2:
				state = event.Repeat
			}
			b.sink.OnKey(code, state, ts)
		case evRel:
			switch code {
			case relX:
				dx = value
			case relY:
				dy = value
			case relZ:
				dz = value
			}
		case evSyn:
			if dx != 0 || dy != 0 || dz != 0 {
				b.sink.OnRelMotion(dx, dy, dz, 0, ts)
				dx, dy, dz = 0, 0, 0
			}
		}
	}
}
