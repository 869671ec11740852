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

// rtuMaxADU is 1 address byte + 253 PDU bytes + 2 CRC bytes.
const rtuMaxADU = 256

// RTUFramer implements Framer for Modbus RTU: address | PDU | CRC-low |
// CRC-high, delimited on the wire by inter-frame silence rather than an
// explicit terminator.
//
// skipLeadingZero accommodates RS-485 transceivers that emit a spurious
// 0x00 while toggling DE/RE: when set, a single leading zero byte is
// consumed and discarded before frame parsing begins. It is exposed
// through SetSkipLeadingZero because the façade's skip_leading_0x00 toggle
// can be flipped after the worker has started.
type RTUFramer struct {
	baud int

	mu              sync.Mutex
	skipLeadingZero bool
}

// NewRTUFramer returns a RTUFramer for the given baud rate.
// skipLeadingZero corresponds to the client's skip_leading_0x00 toggle
// (spec.md §4.2, §4.7).
func NewRTUFramer(baud int, skipLeadingZero bool) *RTUFramer {
	return &RTUFramer{baud: baud, skipLeadingZero: skipLeadingZero}
}

// SetSkipLeadingZero updates the leading-zero toggle for frames decoded
// from now on.
func (f *RTUFramer) SetSkipLeadingZero(on bool) {
	f.mu.Lock()
	f.skipLeadingZero = on
	f.mu.Unlock()
}

func (f *RTUFramer) skipZero() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.skipLeadingZero
}

func (f *RTUFramer) MaxADU() int { return rtuMaxADU }

// SilenceInterval is the 3.5-character-time inter-frame silence the
// worker must observe before transmitting and while delimiting a
// response, floored at 2000us (spec.md §4.2).
func (f *RTUFramer) SilenceInterval() time.Duration {
	return rtuSilence(f.baud)
}

// Encode packs address + PDU + CRC16 (low byte first, as transmitted on
// the wire).
func (f *RTUFramer) Encode(msg ModbusMessage) ([]byte, error) {
	if !msg.IsPresent() {
		return nil, NewModbusError(EmptyMessage)
	}
	data := msg.Data()
	frame := make([]byte, len(data)+2)
	copy(frame, data)
	var c crc
	c.reset().pushBytes(data)
	v := c.value()
	frame[len(data)] = byte(v & 0xFF)
	frame[len(data)+1] = byte(v >> 8)
	return frame, nil
}

// Decode reads a frame delimited by inter-frame silence: it keeps
// consuming bytes until either ReadByte times out (silence observed, or
// the overall response timeout elapsed) or rtuMaxADU bytes have been
// read. It then validates length and CRC.
func (f *RTUFramer) Decode(r FrameReader, timeout time.Duration) (ModbusMessage, ErrorKind) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, rtuMaxADU)

	first, err := r.ReadByte(timeout)
	if err != nil {
		return ModbusMessage{}, Timeout
	}
	if f.skipZero() && first == 0x00 {
		first, err = r.ReadByte(time.Until(deadline))
		if err != nil {
			return ModbusMessage{}, Timeout
		}
	}
	buf = append(buf, first)

	silence := f.SilenceInterval()
	for len(buf) < rtuMaxADU {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := silence
		if wait > remaining {
			wait = remaining
		}
		b, err := r.ReadByte(wait)
		if err != nil {
			break // silence observed: frame is complete
		}
		buf = append(buf, b)
	}

	if len(buf) < 4 {
		return ModbusMessage{}, PacketLengthError
	}

	dataLen := len(buf) - 2
	receivedCRC := uint16(buf[dataLen]) | uint16(buf[dataLen+1])<<8
	var c crc
	c.reset().pushBytes(buf[:dataLen])
	if c.value() != receivedCRC {
		return ModbusMessage{}, CRCError
	}

	return NewMessageFromBytes(buf[:dataLen]), Success
}

// rtuSilence is the minimum inter-frame silence for baud, 3.5 character
// times (11 bits/char: start, 8 data, parity, stop), floored at 2000us as
// required by spec.md §4.2.
func rtuSilence(baud int) time.Duration {
	if baud <= 0 {
		baud = 9600
	}
	charTimeNs := float64(11) / float64(baud) * float64(time.Second)
	us := time.Duration(charTimeNs * 3.5)
	if us < 2000*time.Microsecond {
		us = 2000 * time.Microsecond
	}
	return us
}
