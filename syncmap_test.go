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

func TestSyncResponseMapPublishAndWait(t *testing.T) {
	sm := NewSyncResponseMap()
	want := NewMessageFromBytes([]byte{0x01, 0x03, 0x02, 0x00, 0x01})

	go func() {
		time.Sleep(5 * time.Millisecond)
		sm.Publish(42, want)
	}()

	got := sm.Wait(42, time.Second)
	if !got.Equal(want) {
		t.Fatalf("wait() = % X, want % X", got.Data(), want.Data())
	}
}

func TestSyncResponseMapWaitTimesOut(t *testing.T) {
	sm := NewSyncResponseMap()
	got := sm.Wait(7, 20*time.Millisecond)
	if got.GetError() != Timeout {
		t.Fatalf("get_error() = %v, want Timeout", got.GetError())
	}
}

func TestSyncResponseMapTakeConsumesOnce(t *testing.T) {
	sm := NewSyncResponseMap()
	sm.Publish(1, NewMessageFromBytes([]byte{0x01, 0x03, 0x00}))

	if _, ok := sm.Take(1); !ok {
		t.Fatal("expected first take to succeed")
	}
	if _, ok := sm.Take(1); ok {
		t.Fatal("second take should find nothing, entry already consumed")
	}
}

func TestSyncResponseMapDiscard(t *testing.T) {
	sm := NewSyncResponseMap()
	sm.Publish(3, NewMessageFromBytes([]byte{0x01, 0x03, 0x00}))
	sm.Discard(3)
	if _, ok := sm.Take(3); ok {
		t.Fatal("expected discarded entry to be gone")
	}
}
