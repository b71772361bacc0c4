package frame

import (
	"bytes"
	"io"
	"testing"
)

func TestBufferReserveGrowsByIncrement(t *testing.T) {
	buf := NewBuffer(4096)
	buf.Reserve(1024)
	if buf.Cap() != 4096 {
		t.Fatalf("reserve with enough spare grew buffer: cap=%d", buf.Cap())
	}

	_, _ = buf.Write(bytes.Repeat([]byte{1}, 3500))
	before := buf.Cap()
	buf.Reserve(1024)
	if buf.Cap() != before+1024 {
		t.Fatalf("expected cap=%d, got %d", before+1024, buf.Cap())
	}
	if buf.Available() < 1024 {
		t.Fatalf("expected >= 1024 spare, got %d", buf.Available())
	}
	if buf.Len() != 3500 {
		t.Fatalf("reserve changed length: %d", buf.Len())
	}
}

func TestBufferReadOnceAppends(t *testing.T) {
	buf := NewBuffer(2)
	_, _ = buf.Write([]byte{0x10})
	buf.Reserve(1024)

	n, err := buf.ReadOnce(bytes.NewReader([]byte{0x02, 0xAA, 0xBB}))
	if err != nil || n != 3 {
		t.Fatalf("read once: n=%d err=%v", n, err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0x10, 0x02, 0xAA, 0xBB}) {
		t.Fatalf("unexpected contents: % x", buf.Bytes())
	}

	n, err = buf.ReadOnce(bytes.NewReader(nil))
	if n != 0 || err != io.EOF {
		t.Fatalf("expected (0, EOF), got (%d, %v)", n, err)
	}
}

func TestBufferNextReturnsOwnedCopy(t *testing.T) {
	buf := NewBuffer(8)
	_, _ = buf.Write([]byte{1, 2, 3, 4, 5})
	head := buf.Next(2)
	head[0] = 9
	if !bytes.Equal(buf.Bytes(), []byte{3, 4, 5}) {
		t.Fatalf("unexpected remainder: % x", buf.Bytes())
	}
	if got := buf.Next(10); !bytes.Equal(got, []byte{3, 4, 5}) || buf.Len() != 0 {
		t.Fatalf("next past end: got=% x len=%d", got, buf.Len())
	}
}

func TestBufferNextLeavesRemainderInPlace(t *testing.T) {
	buf := NewBuffer(16)
	_, _ = buf.Write([]byte{1, 2, 3, 4, 5, 6})
	before := buf.Bytes()
	_ = buf.Next(2)
	if &buf.Bytes()[0] != &before[2] {
		t.Fatalf("next moved the remaining bytes")
	}
	if buf.Cap() != 14 {
		t.Fatalf("expected cap=14 after consuming 2, got %d", buf.Cap())
	}
}

func TestBufferReserveReclaimsConsumedPrefix(t *testing.T) {
	buf := NewBuffer(8)
	_, _ = buf.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	_ = buf.Next(6)
	buf.Reserve(4)
	if cap(buf.data) != 8 {
		t.Fatalf("reserve grew instead of reclaiming: cap=%d", cap(buf.data))
	}
	if !bytes.Equal(buf.Bytes(), []byte{7, 8}) || buf.Available() != 6 {
		t.Fatalf("unexpected state: % x available=%d", buf.Bytes(), buf.Available())
	}

	buf.Reserve(10)
	if cap(buf.data) != 18 || !bytes.Equal(buf.Bytes(), []byte{7, 8}) {
		t.Fatalf("unexpected growth: cap=%d bytes=% x", cap(buf.data), buf.Bytes())
	}
}

func TestBufferDecodesManySmallFramesWithoutShifting(t *testing.T) {
	const frames = 1 << 18
	buf := NewBuffer(2 * frames)
	_, _ = buf.Write(bytes.Repeat([]byte{0xC0, 0x00}, frames))
	base := &buf.Bytes()[0]

	for i := range frames {
		if i > 0 && i%4096 == 0 && &buf.Bytes()[0] != &buf.data[2*i] {
			t.Fatalf("frame %d: remainder was moved", i)
		}
		f, err := Decode(buf, Limits{})
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Header() != 0xC0 {
			t.Fatalf("frame %d: header %#x", i, f.Header())
		}
	}
	if buf.Len() != 0 || &buf.data[:1][0] != base {
		t.Fatalf("buffer not drained in place: len=%d", buf.Len())
	}
}
