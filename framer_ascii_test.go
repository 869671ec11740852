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
	"testing"
	"time"
)

func TestASCIIFramerEncodeFraming(t *testing.T) {
	f := NewASCIIFramer()
	msg := NewMessageFromBytes([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02})
	frame, err := f.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if frame[0] != ':' {
		t.Fatalf("frame must start with ':', got %q", frame[0])
	}
	if frame[len(frame)-2] != '\r' || frame[len(frame)-1] != '\n' {
		t.Fatalf("frame must end with CR LF, got %q", frame[len(frame)-2:])
	}
}

func TestASCIIFramerRoundTrip(t *testing.T) {
	f := NewASCIIFramer()
	msg := NewMessageFromBytes([]byte{0x11, 0x06, 0x00, 0x01, 0x00, 0x2A})
	frame, err := f.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, kind := f.Decode(&fakeFrameReader{data: frame}, 50*time.Millisecond)
	if kind != Success {
		t.Fatalf("decode outcome = %v, want Success", kind)
	}
	if !decoded.Equal(msg) {
		t.Fatalf("round trip mismatch: got % X, want % X", decoded.Data(), msg.Data())
	}
}

func TestASCIIFramerDiscardsNoiseBeforeStart(t *testing.T) {
	f := NewASCIIFramer()
	msg := NewMessageFromBytes([]byte{0x01, 0x03, 0x02, 0x00, 0x01})
	frame, err := f.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	noisy := append([]byte{0x00, 0xFF, 0x41}, frame...)

	decoded, kind := f.Decode(&fakeFrameReader{data: noisy}, 50*time.Millisecond)
	if kind != Success {
		t.Fatalf("decode outcome = %v, want Success", kind)
	}
	if !decoded.Equal(msg) {
		t.Fatalf("decoded = % X, want % X", decoded.Data(), msg.Data())
	}
}

func TestASCIIFramerLRCMismatch(t *testing.T) {
	// ":0103020001" + wrong LRC "00" + CRLF
	frame := []byte(":010302000100\r\n")
	f := NewASCIIFramer()
	_, kind := f.Decode(&fakeFrameReader{data: frame}, 50*time.Millisecond)
	if kind != ASCIICRCErr {
		t.Fatalf("decode outcome = %v, want ASCIICRCErr", kind)
	}
}

func TestASCIIFramerInvalidHexChar(t *testing.T) {
	frame := []byte(":ZZ0302000100\r\n")
	f := NewASCIIFramer()
	_, kind := f.Decode(&fakeFrameReader{data: frame}, 50*time.Millisecond)
	if kind != ASCIIInvalidChar {
		t.Fatalf("decode outcome = %v, want ASCIIInvalidChar", kind)
	}
}

func TestASCIIFramerMissingTerminator(t *testing.T) {
	frame := []byte(":0103020001FA")
	f := NewASCIIFramer()
	_, kind := f.Decode(&fakeFrameReader{data: frame}, 50*time.Millisecond)
	if kind != ASCIIFrameErr {
		t.Fatalf("decode outcome = %v, want ASCIIFrameErr", kind)
	}
}
