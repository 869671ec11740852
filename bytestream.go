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
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	goserial "github.com/hootrhino/goserial"
)

// ErrReadTimeout is returned by ByteStream.ReadByte when no byte arrived
// within the given timeout.
var ErrReadTimeout = errors.New("modbus: read timeout")

// ByteStream is the abstract byte-level collaborator the worker drives.
// It is the boundary named in spec.md §6: this package never opens a
// serial port or socket itself beyond the concrete adapters below, which
// exist so the library is usable out of the box while remaining swappable.
type ByteStream interface {
	Write(b []byte) (int, error)
	ReadByte(timeout time.Duration) (byte, error)
	BytesAvailable() int
	Flush() error
}

// TCPByteStream additionally exposes the connection lifecycle operations
// the TCP worker needs.
type TCPByteStream interface {
	ByteStream
	Connect(addr string, timeout time.Duration) error
	Disconnect() error
	Connected() bool
	SetNoDelay(on bool) error
}

// RTSFunc is called with true immediately before transmit and false once
// the final byte is on the wire, for auto-toggling RS-485 transceivers
// that need an explicit driver-enable signal. A nil RTSFunc is a no-op.
type RTSFunc func(level bool)

// serialByteStream adapts a github.com/hootrhino/goserial port to
// ByteStream, for RTU and ASCII workers.
type serialByteStream struct {
	port io.ReadWriteCloser
}

// NewSerialByteStream opens a serial port with goserial and wraps it as a
// ByteStream. Address, baud rate, data bits, stop bits and parity follow
// goserial.Config exactly as the teacher's RTU tests configure it.
func NewSerialByteStream(cfg goserial.Config) (ByteStream, error) {
	port, err := goserial.Open(&cfg)
	if err != nil {
		return nil, fmt.Errorf("modbus: failed to open serial port: %w", err)
	}
	return &serialByteStream{port: port}, nil
}

func (s *serialByteStream) Write(b []byte) (int, error) {
	return s.port.Write(b)
}

// ReadByte gives each call its own local scratch buffer, exactly as the
// teacher's readByteWithTimeout does: goserial.Port exposes no read
// deadline, so a timed-out call's goroutine keeps blocking on port.Read
// after this function returns, and a shared buffer would let it clobber
// the next call's read in place.
func (s *serialByteStream) ReadByte(timeout time.Duration) (byte, error) {
	type result struct {
		b   byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		b := make([]byte, 1)
		n, err := s.port.Read(b)
		if err != nil {
			done <- result{0, err}
			return
		}
		if n == 0 {
			done <- result{0, ErrReadTimeout}
			return
		}
		done <- result{b[0], nil}
	}()
	select {
	case r := <-done:
		return r.b, r.err
	case <-time.After(timeout):
		return 0, ErrReadTimeout
	}
}

func (s *serialByteStream) BytesAvailable() int {
	return 0 // goserial.Port does not expose a pending-byte count
}

func (s *serialByteStream) Flush() error {
	return nil
}

func (s *serialByteStream) Close() error {
	return s.port.Close()
}

// tcpByteStream adapts a net.Conn to TCPByteStream.
type tcpByteStream struct {
	conn net.Conn
	buf  []byte
}

// NewTCPByteStream wraps an already-established connection. Use
// NewUnconnectedTCPByteStream if the worker itself should own dialing.
func NewTCPByteStream(conn net.Conn) TCPByteStream {
	return &tcpByteStream{conn: conn, buf: make([]byte, 1)}
}

// NewUnconnectedTCPByteStream returns a stream with no connection yet;
// Connect must be called before use. This is what NewTCPClient uses.
func NewUnconnectedTCPByteStream() TCPByteStream {
	return &tcpByteStream{buf: make([]byte, 1)}
}

func (s *tcpByteStream) Connect(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *tcpByteStream) Disconnect() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *tcpByteStream) Connected() bool {
	return s.conn != nil
}

func (s *tcpByteStream) SetNoDelay(on bool) error {
	if tc, ok := s.conn.(*net.TCPConn); ok {
		return tc.SetNoDelay(on)
	}
	return nil
}

func (s *tcpByteStream) Write(b []byte) (int, error) {
	if s.conn == nil {
		return 0, errors.New("modbus: tcp stream not connected")
	}
	return s.conn.Write(b)
}

func (s *tcpByteStream) ReadByte(timeout time.Duration) (byte, error) {
	if s.conn == nil {
		return 0, errors.New("modbus: tcp stream not connected")
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, err := s.conn.Read(s.buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, ErrReadTimeout
		}
		return 0, err
	}
	if n == 0 {
		return 0, ErrReadTimeout
	}
	return s.buf[0], nil
}

func (s *tcpByteStream) BytesAvailable() int {
	return 0
}

func (s *tcpByteStream) Flush() error {
	return nil
}
