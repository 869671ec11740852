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
	"encoding/binary"
	"time"
)

const (
	mbapHeaderLen  = 7
	protocolIDMBAP = 0
	// tcpMaxADU is the 7-byte MBAP header plus the largest PDU.
	tcpMaxADU = mbapHeaderLen + MaxPDULength
)

// TCPFramer implements Framer for Modbus TCP: a 7-byte MBAP header
// (transaction id, protocol id = 0, length, unit id) followed by the PDU.
// The framer itself does not choose transaction ids; it asks the idFor
// function passed to NewTCPFramer, and remembers the last id it encoded so
// Decode can check the echoed one.
type TCPFramer struct {
	transactionID func(msg ModbusMessage) uint16
	lastSent      uint16
}

// NewTCPFramer returns a TCPFramer. idFor assigns the transaction id used
// when encoding msg; the worker supplies a strictly monotonic counter
// (spec.md §9 decision). Encode records the id it sent so Decode can
// validate the echoed id.
func NewTCPFramer(idFor func(msg ModbusMessage) uint16) *TCPFramer {
	return &TCPFramer{transactionID: idFor}
}

func (f *TCPFramer) MaxADU() int { return tcpMaxADU }

func (f *TCPFramer) Encode(msg ModbusMessage) ([]byte, error) {
	if !msg.IsPresent() {
		return nil, NewModbusError(EmptyMessage)
	}
	data := msg.Data() // address (unit id) + PDU
	tid := f.transactionID(msg)
	f.lastSent = tid

	frame := make([]byte, mbapHeaderLen+len(data)-1)
	binary.BigEndian.PutUint16(frame[0:2], tid)
	binary.BigEndian.PutUint16(frame[2:4], protocolIDMBAP)
	binary.BigEndian.PutUint16(frame[4:6], uint16(len(data)))
	frame[6] = data[0] // unit id
	copy(frame[7:], data[1:])
	return frame, nil
}

// Decode reads exactly one MBAP frame: the 7-byte header first (which
// carries the PDU length), then that many bytes of payload.
func (f *TCPFramer) Decode(r FrameReader, timeout time.Duration) (ModbusMessage, ErrorKind) {
	deadline := time.Now().Add(timeout)

	header := make([]byte, mbapHeaderLen)
	for i := range header {
		b, err := r.ReadByte(time.Until(deadline))
		if err != nil {
			return ModbusMessage{}, Timeout
		}
		header[i] = b
	}

	tid := binary.BigEndian.Uint16(header[0:2])
	proto := binary.BigEndian.Uint16(header[2:4])
	length := binary.BigEndian.Uint16(header[4:6])
	unitID := header[6]

	if proto != protocolIDMBAP || tid != f.lastSent {
		return ModbusMessage{}, TCPHeadMismatch
	}
	if length == 0 || int(length) > tcpMaxADU {
		return ModbusMessage{}, PacketLengthError
	}

	pduLen := int(length) - 1 // length includes the unit id byte
	if pduLen < 0 {
		return ModbusMessage{}, PacketLengthError
	}
	body := make([]byte, 1+pduLen)
	body[0] = unitID
	for i := 0; i < pduLen; i++ {
		b, err := r.ReadByte(time.Until(deadline))
		if err != nil {
			return ModbusMessage{}, PacketLengthError
		}
		body[1+i] = b
	}

	return NewMessageFromBytes(body), Success
}
