package evdev

import (
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfeldman/qips/internal/event"
)

type fakeSink struct {
	keys []event.Key
	rel  []event.RelMotion
}

func (s *fakeSink) OnKey(scancode uint16, state event.KeyState, ts int64) {
	s.keys = append(s.keys, event.Key{Scancode: scancode, State: state})
}
func (s *fakeSink) OnRelMotion(dx, dy, dz int32, buttons event.ButtonSet, ts int64) {
	s.rel = append(s.rel, event.RelMotion{DX: dx, DY: dy, DZ: dz, Buttons: buttons})
}
func (s *fakeSink) OnAbsMotion(x, y, z int32, buttons event.ButtonSet, ts int64) {}

func rawEvent(typ, code uint16, value int32) []byte {
	buf := make([]byte, inputEventSize)
	binary.LittleEndian.PutUint16(buf[16:18], typ)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
	return buf
}

func TestReadLoopDecodesKeyPress(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { r.Close(); w.Close() })

	sink := &fakeSink{}
	b := &Backend{f: r, sink: sink, done: make(chan struct{})}
	go b.readLoop()

	_, err = w.Write(rawEvent(evKey, 0x1D, 1))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sink.keys) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint16(0x1D), sink.keys[0].Scancode)
	assert.Equal(t, event.Pressed, sink.keys[0].State)
}

func TestReadLoopCoalescesRelMotionOnSyn(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { r.Close(); w.Close() })

	sink := &fakeSink{}
	b := &Backend{f: r, sink: sink, done: make(chan struct{})}
	go b.readLoop()

	_, err = w.Write(rawEvent(evRel, relX, 5))
	require.NoError(t, err)
	_, err = w.Write(rawEvent(evRel, relY, -3))
	require.NoError(t, err)
	_, err = w.Write(rawEvent(evSyn, 0, 0))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sink.rel) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(5), sink.rel[0].DX)
	assert.Equal(t, int32(-3), sink.rel[0].DY)
}
