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

import "sync"

// counters holds the two monotonically increasing message/error counts a
// client tracks (spec.md §3). Both are mutated under the same mutex so
// reset and reads always observe a coherent pair, rather than two
// independently-atomic fields that could be read mid-reset.
type counters struct {
	mu      sync.Mutex
	message uint32
	errors  uint32
}

// incMessage records a successful admission to the queue.
func (c *counters) incMessage() {
	c.mu.Lock()
	c.message++
	c.mu.Unlock()
}

// incError records a completed request whose outcome was not Success,
// including QUEUE_CLEARED (spec.md §9 decision).
func (c *counters) incError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// snapshot returns (message_count, error_count) as a coherent pair.
func (c *counters) snapshot() (uint32, uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message, c.errors
}

// reset zeroes both counters atomically with respect to readers.
func (c *counters) reset() {
	c.mu.Lock()
	c.message = 0
	c.errors = 0
	c.mu.Unlock()
}
