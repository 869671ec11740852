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

import "time"

// Framer encodes a ModbusMessage to on-wire bytes and decodes on-wire
// bytes back into a ModbusMessage. The worker holds one Framer picked at
// construction; an RTU-family client can swap between its RTU and ASCII
// framers at runtime through Worker.SetFramerSelect.
type Framer interface {
	// Encode serializes msg (address + PDU, no framing overhead) into a
	// ready-to-transmit frame.
	Encode(msg ModbusMessage) ([]byte, error)

	// Decode reads a single frame from r and parses it into a
	// ModbusMessage. It returns an ErrorKind (never a message) when the
	// frame is malformed, so the worker can synthesize a uniform error
	// response via ModbusMessage.SetError.
	Decode(r FrameReader, timeout time.Duration) (ModbusMessage, ErrorKind)

	// MaxADU is the largest complete on-wire frame this profile ever
	// produces. The worker does not call it; each framer sizes its own
	// decode buffer from the same constant.
	MaxADU() int
}

// FrameReader is the subset of ByteStream a Framer needs to pull bytes off
// the wire. It is satisfied by ByteStream itself; kept separate so framers
// never see write/connect methods they have no business calling.
type FrameReader interface {
	ReadByte(timeout time.Duration) (byte, error)
	BytesAvailable() int
}
