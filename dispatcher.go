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

// OnDataFunc delivers a successful response.
type OnDataFunc func(response ModbusMessage, token uint32)

// OnErrorFunc delivers a non-success outcome.
type OnErrorFunc func(kind ErrorKind, token uint32)

// OnResponseFunc delivers every outcome, success or not, unified.
type OnResponseFunc func(response ModbusMessage, token uint32)

// dispatchMode distinguishes which of the three mutually exclusive
// handler configurations (spec.md §3, §9) is active.
type dispatchMode int

const (
	dispatchNone dispatchMode = iota
	dispatchLegacy
	dispatchUnified
)

// dispatch is the tagged variant spec.md §9 calls for in place of the
// source's procedurally-enforced mutual exclusion: at most one of the
// legacy (onData+onError) or unified (onResponse) shapes is live at a
// time, and the type itself makes the third combination unrepresentable.
type dispatch struct {
	mode       dispatchMode
	onData     OnDataFunc
	onError    OnErrorFunc
	onResponse OnResponseFunc
}

// Dispatcher routes a completed outcome to the right destination: a sync
// waiter, a per-request handler, or the client-level dispatch
// configuration, exactly in the priority order of spec.md §4.6. It is
// safe to share across goroutines; the worker is its only caller.
type Dispatcher struct {
	sync    *SyncResponseMap
	logger  *SimpleLogger
	current func() dispatch
}

// NewDispatcher builds a Dispatcher over sm. current returns the client's
// live dispatch configuration at call time, so handler registration after
// construction is picked up (subject to the single-writer-before-begin
// precondition of spec.md §5).
func NewDispatcher(sm *SyncResponseMap, logger *SimpleLogger, current func() dispatch) *Dispatcher {
	if logger == nil {
		logger = nopLogger
	}
	return &Dispatcher{sync: sm, logger: logger, current: current}
}

// Deliver routes entry's completed response. Handlers run synchronously on
// the calling (worker) goroutine; per spec.md §4.6 they must not block.
func (d *Dispatcher) Deliver(entry RequestEntry, response ModbusMessage) {
	if entry.IsSync {
		d.sync.Publish(entry.Token, response)
		return
	}
	if entry.ResponseHandler != nil {
		entry.ResponseHandler(response, entry.Token)
		return
	}

	cur := d.current()
	switch cur.mode {
	case dispatchUnified:
		if cur.onResponse != nil {
			cur.onResponse(response, entry.Token)
			return
		}
	case dispatchLegacy:
		if response.GetError() == Success {
			if cur.onData != nil {
				cur.onData(response, entry.Token)
				return
			}
		} else if cur.onError != nil {
			cur.onError(response.GetError(), entry.Token)
			return
		}
	}
	d.logger.Warnf("dropped response for token %d: no handler registered", entry.Token)
}
