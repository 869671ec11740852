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
	"log"
	"os"
	"testing"
	"time"

	modbus_server "github.com/hootrhino/mbserver"
	"github.com/hootrhino/mbserver/store"
)

const integrationTestAddr = "localhost:15020"

// startTestTCPServer brings up an in-process Modbus TCP server seeded with
// known holding register values, the way the teacher's tcp_client_test.go
// does, but on a high port so it never fights the real Modbus port 502 for
// a bind.
func startTestTCPServer(t *testing.T) *modbus_server.Server {
	t.Helper()
	memStore := store.NewInMemoryStore().(*store.InMemoryStore)
	memStore.SetHoldingRegisters(make([]uint16, 10))

	server := modbus_server.NewServer(memStore, 10)
	server.SetErrorHandler(func(err error) {
		log.Printf("mbserver error: %v", err)
	})
	server.SetLogger(os.Stdout)

	preset := make([]uint16, 10)
	for i := range preset {
		preset[i] = 0xABCD
	}
	if err := server.SetHoldingRegisters(preset); err != nil {
		t.Fatalf("seeding holding registers: %v", err)
	}

	if err := server.Start(":15020"); err != nil {
		t.Fatalf("starting test server: %v", err)
	}
	return server
}

func TestClientTCPReadHoldingRegistersAgainstRealServer(t *testing.T) {
	server := startTestTCPServer(t)
	defer server.Stop()

	cfg := DefaultClientConfig()
	cfg.ResponseTimeout = 3 * time.Second
	cfg.MinTCPInterval = 10 * time.Millisecond

	client := NewTCPClient(cfg, integrationTestAddr)
	client.Begin()
	defer client.End()

	regs, kind := client.ReadHoldingRegisters(0x01, 0x01, 0x0000, 0x0002)
	if kind != Success {
		t.Fatalf("ReadHoldingRegisters outcome = %v, want Success", kind)
	}
	if err := AssertUint16Equal([]uint16{0xABCD, 0xABCD}, regs); err != nil {
		t.Fatalf("register mismatch: %v", err)
	}
}

func TestClientTCPMultipleSequentialReads(t *testing.T) {
	server := startTestTCPServer(t)
	defer server.Stop()

	cfg := DefaultClientConfig()
	cfg.ResponseTimeout = 3 * time.Second
	cfg.MinTCPInterval = 10 * time.Millisecond

	client := NewTCPClient(cfg, integrationTestAddr)
	client.Begin()
	defer client.End()

	for i := uint16(0); i < 5; i++ {
		regs, kind := client.ReadHoldingRegisters(uint32(i)+1, 0x01, i, 1)
		if kind != Success {
			t.Fatalf("read %d outcome = %v, want Success", i, kind)
		}
		if err := AssertUint16Equal([]uint16{0xABCD}, regs); err != nil {
			t.Fatalf("read %d mismatch: %v", i, err)
		}
	}
	if client.GetMessageCount() != 5 {
		t.Fatalf("message_count = %d, want 5", client.GetMessageCount())
	}
	if client.GetErrorCount() != 0 {
		t.Fatalf("error_count = %d, want 0", client.GetErrorCount())
	}
}
