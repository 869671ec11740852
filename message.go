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

import "encoding/binary"

// MaxPDULength is the largest Protocol Data Unit the Modbus spec allows,
// independent of the transport's own framing overhead.
const MaxPDULength = 253

// ModbusMessage is the ADU payload excluding any transport framing: byte 0
// is the server/unit address, byte 1 is the function code (top bit set on
// an exception response), the rest is the PDU body. A zero-length message
// is "absent"; a present message has at least an address and a function
// code.
type ModbusMessage struct {
	raw []byte
}

// NewMessage returns an empty (absent) message.
func NewMessage() ModbusMessage {
	return ModbusMessage{}
}

// NewMessageFromBytes copies data into a new message. The caller's slice
// is never aliased.
func NewMessageFromBytes(data []byte) ModbusMessage {
	m := ModbusMessage{raw: make([]byte, len(data))}
	copy(m.raw, data)
	return m
}

// NewRequestMessage builds a present message from a server id, function
// code and payload.
func NewRequestMessage(serverID, functionCode byte, payload []byte) ModbusMessage {
	m := ModbusMessage{raw: make([]byte, 2, 2+len(payload))}
	m.raw[0] = serverID
	m.raw[1] = functionCode
	m.raw = append(m.raw, payload...)
	return m
}

// AppendByte appends a single byte to the message body.
func (m *ModbusMessage) AppendByte(b byte) {
	m.raw = append(m.raw, b)
}

// AppendBytes appends a run of bytes to the message body.
func (m *ModbusMessage) AppendBytes(b []byte) {
	m.raw = append(m.raw, b...)
}

// AppendUint16 appends a big-endian u16, as mandated for all multi-byte
// quantities on the Modbus wire.
func (m *ModbusMessage) AppendUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	m.raw = append(m.raw, b[:]...)
}

// AppendUint32 appends a big-endian u32.
func (m *ModbusMessage) AppendUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	m.raw = append(m.raw, b[:]...)
}

// IsPresent reports whether the message carries at least an address and a
// function code.
func (m ModbusMessage) IsPresent() bool {
	return len(m.raw) >= 2
}

// GetServerID returns byte 0 of the ADU (0 denotes broadcast, RTU only).
func (m ModbusMessage) GetServerID() byte {
	if len(m.raw) < 1 {
		return 0
	}
	return m.raw[0]
}

// GetFunctionCode returns byte 1 of the ADU, exception bit included.
func (m ModbusMessage) GetFunctionCode() byte {
	if len(m.raw) < 2 {
		return 0
	}
	return m.raw[1]
}

// BaseFunctionCode returns the function code with the exception bit
// masked off, for correlating a response against the request that was
// sent.
func (m ModbusMessage) BaseFunctionCode() byte {
	return m.GetFunctionCode() &^ 0x80
}

// IsException reports whether the top bit of the function code is set.
func (m ModbusMessage) IsException() bool {
	return m.GetFunctionCode()&0x80 != 0
}

// Size returns the total ADU length in bytes.
func (m ModbusMessage) Size() int {
	return len(m.raw)
}

// Data returns the raw ADU bytes. Callers must not mutate the returned
// slice.
func (m ModbusMessage) Data() []byte {
	return m.raw
}

// Payload returns the ADU body following the address and function code.
func (m ModbusMessage) Payload() []byte {
	if len(m.raw) < 2 {
		return nil
	}
	return m.raw[2:]
}

// SetError overwrites the message with a synthetic 3-byte error response:
// address, function code OR'd with the exception bit, exception code. Per
// the normalization decision in DESIGN.md, the exception bit is always set
// on synthesized errors so GetError is uniform regardless of whether the
// failure originated on the wire or inside this client.
func (m *ModbusMessage) SetError(serverID, functionCode byte, kind ErrorKind) {
	m.raw = []byte{serverID, functionCode | 0x80, byte(kind)}
}

// GetError returns the carried ErrorKind: Success unless this is a
// 3-byte message with the exception bit set, in which case it is the
// third byte — whether that byte came from a genuine Modbus exception
// response or was synthesized by SetError.
func (m ModbusMessage) GetError() ErrorKind {
	if len(m.raw) == 3 && m.raw[1]&0x80 != 0 {
		return ErrorKind(m.raw[2])
	}
	return Success
}

// Equal compares two messages by content, used by framer round-trip tests.
func (m ModbusMessage) Equal(other ModbusMessage) bool {
	if len(m.raw) != len(other.raw) {
		return false
	}
	for i := range m.raw {
		if m.raw[i] != other.raw[i] {
			return false
		}
	}
	return true
}
