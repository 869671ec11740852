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

// DefaultSyncPatience is how long SyncResponseMap.Wait blocks for a
// response before giving up (spec.md §4.4, §6: 10-60s configurable).
const DefaultSyncPatience = 10 * time.Second

const syncPollInterval = 10 * time.Millisecond

// SyncResponseMap rendezvouses a worker (publisher) with a blocked caller
// (taker) by token. An entry exists only between "worker produced the
// response" and "blocked caller consumed it". The publisher never blocks;
// the waiter polls, which is the portable realization spec.md §9 calls
// out for targets without a per-token condition variable.
type SyncResponseMap struct {
	mu    sync.Mutex
	ready map[uint32]ModbusMessage
}

// NewSyncResponseMap returns an empty SyncResponseMap.
func NewSyncResponseMap() *SyncResponseMap {
	return &SyncResponseMap{ready: make(map[uint32]ModbusMessage)}
}

// Publish stores msg under token for a future Take/Wait to pick up.
func (s *SyncResponseMap) Publish(token uint32, msg ModbusMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready[token] = msg
}

// Take removes and returns the response for token, if one has been
// published yet.
func (s *SyncResponseMap) Take(token uint32) (ModbusMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.ready[token]
	if ok {
		delete(s.ready, token)
	}
	return msg, ok
}

// Wait polls Take until a response for token is published or patience
// elapses, in which case it synthesizes a TIMEOUT response and clears any
// slot the worker might still publish into later.
func (s *SyncResponseMap) Wait(token uint32, patience time.Duration) ModbusMessage {
	if patience <= 0 {
		patience = DefaultSyncPatience
	}
	deadline := time.Now().Add(patience)
	for {
		if msg, ok := s.Take(token); ok {
			return msg
		}
		if time.Now().After(deadline) {
			s.Discard(token)
			var timeout ModbusMessage
			timeout.SetError(0, 0, Timeout)
			return timeout
		}
		time.Sleep(syncPollInterval)
	}
}

// Discard removes any pending entry for token without returning it, used
// when a sync waiter gives up so a late worker publish does not leak.
func (s *SyncResponseMap) Discard(token uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ready, token)
}
