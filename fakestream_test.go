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
	"sync"
	"time"
)

// fakeFrameReader feeds a fixed byte sequence to a Framer.Decode call,
// then reports ErrReadTimeout once it is exhausted, the way an idle wire
// looks to a real ByteStream.
type fakeFrameReader struct {
	data []byte
	pos  int
}

func (f *fakeFrameReader) ReadByte(timeout time.Duration) (byte, error) {
	if f.pos >= len(f.data) {
		return 0, ErrReadTimeout
	}
	b := f.data[f.pos]
	f.pos++
	return b, nil
}

func (f *fakeFrameReader) BytesAvailable() int {
	return len(f.data) - f.pos
}

// fakeByteStream is a full ByteStream/TCPByteStream double that records
// writes and replays a scripted sequence of replies, for worker-level
// tests that need both ends of the wire.
type fakeByteStream struct {
	mu        sync.Mutex
	written   [][]byte
	replies   [][]byte
	connected bool
	connectFn func(addr string) error
}

func (f *fakeByteStream) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	f.written = append(f.written, cp)
	return len(b), nil
}

func (f *fakeByteStream) ReadByte(timeout time.Duration) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return 0, ErrReadTimeout
	}
	if len(f.replies[0]) == 0 {
		f.replies = f.replies[1:]
		return 0, ErrReadTimeout
	}
	b := f.replies[0][0]
	f.replies[0] = f.replies[0][1:]
	if len(f.replies[0]) == 0 {
		f.replies = f.replies[1:]
	}
	return b, nil
}

func (f *fakeByteStream) BytesAvailable() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return 0
	}
	return len(f.replies[0])
}

func (f *fakeByteStream) Flush() error { return nil }

func (f *fakeByteStream) queueReply(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, b)
}

func (f *fakeByteStream) lastWritten() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.written) == 0 {
		return nil
	}
	return f.written[len(f.written)-1]
}

func (f *fakeByteStream) Connect(addr string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectFn != nil {
		if err := f.connectFn(addr); err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeByteStream) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeByteStream) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeByteStream) SetNoDelay(on bool) error { return nil }
