// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package modbus

import (
	"io"
	"testing"
	"time"
)

// pipePort stands in for a github.com/hootrhino/goserial port: a plain
// io.ReadWriteCloser with no read-deadline support of its own, which is
// exactly why serialByteStream.ReadByte has to race a goroutine against a
// timer instead of just calling SetReadDeadline.
type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	writes chan []byte
}

func newPipePort() *pipePort {
	r, w := io.Pipe()
	return &pipePort{r: r, w: w, writes: make(chan []byte, 8)}
}

func (p *pipePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *pipePort) Write(b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	p.writes <- cp
	return len(b), nil
}

func (p *pipePort) Close() error {
	p.r.Close()
	return p.w.Close()
}

// feed writes a byte into the read side of the pipe, as if it had arrived
// on the wire.
func (p *pipePort) feed(b byte) {
	go p.w.Write([]byte{b})
}

func TestSerialByteStreamReadByteHappyPath(t *testing.T) {
	port := newPipePort()
	defer port.Close()
	s := &serialByteStream{port: port}

	port.feed(0x42)

	b, err := s.ReadByte(time.Second)
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if b != 0x42 {
		t.Fatalf("ReadByte = 0x%02X, want 0x42", b)
	}
}

func TestSerialByteStreamReadByteTimeout(t *testing.T) {
	port := newPipePort()
	defer port.Close()
	s := &serialByteStream{port: port}

	_, err := s.ReadByte(10 * time.Millisecond)
	if err != ErrReadTimeout {
		t.Fatalf("ReadByte error = %v, want ErrReadTimeout", err)
	}
}

func TestSerialByteStreamReadByteSequentialCallsAreIndependent(t *testing.T) {
	port := newPipePort()
	defer port.Close()
	s := &serialByteStream{port: port}

	// A decode loop calls ReadByte many times in a row; each call must
	// report its own byte rather than one left over from a shared scratch
	// slice reused across calls.
	port.feed(0x11)
	b1, err := s.ReadByte(time.Second)
	if err != nil {
		t.Fatalf("first ReadByte: %v", err)
	}
	port.feed(0x22)
	b2, err := s.ReadByte(time.Second)
	if err != nil {
		t.Fatalf("second ReadByte: %v", err)
	}
	if b1 != 0x11 || b2 != 0x22 {
		t.Fatalf("ReadByte sequence = 0x%02X, 0x%02X, want 0x11, 0x22", b1, b2)
	}
}

func TestSerialByteStreamWrite(t *testing.T) {
	port := newPipePort()
	defer port.Close()
	s := &serialByteStream{port: port}

	n, err := s.Write([]byte{0x01, 0x03, 0x00})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 3 {
		t.Fatalf("Write returned n=%d, want 3", n)
	}

	select {
	case got := <-port.writes:
		if len(got) != 3 || got[0] != 0x01 {
			t.Fatalf("port received % X, want 01 03 00", got)
		}
	default:
		t.Fatal("expected Write to reach the underlying port synchronously")
	}
}
