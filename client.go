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
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ClientConfig holds the knobs common to every transport. Zero values are
// resolved by DefaultClientConfig, following the teacher's Config/Default
// pattern (rtu_transporter.go's RTUConfig/DefaultRTUConfig).
type ClientConfig struct {
	QueueCapacity   int
	ResponseTimeout time.Duration
	MinTCPInterval  time.Duration
	SyncPatience    time.Duration
	Logger          io.Writer
	LogLevel        LogLevel
}

// DefaultClientConfig returns the limits named in spec.md §6.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		QueueCapacity:   DefaultQueueCapacity,
		ResponseTimeout: DefaultResponseTimeout,
		MinTCPInterval:  DefaultMinTCPInterval,
		SyncPatience:    DefaultSyncPatience,
		LogLevel:        LevelWarning,
	}
}

func (c ClientConfig) resolve() ClientConfig {
	d := DefaultClientConfig()
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = d.ResponseTimeout
	}
	if c.MinTCPInterval <= 0 {
		c.MinTCPInterval = d.MinTCPInterval
	}
	if c.SyncPatience <= 0 {
		c.SyncPatience = d.SyncPatience
	}
	return c
}

// Client is the public façade: register handlers, enqueue requests
// (async, sync or broadcast), inspect counters, and control per-transport
// settings. One Client owns exactly one Worker goroutine.
type Client struct {
	kind TransportKind

	queue      *RequestQueue
	syncMap    *SyncResponseMap
	dispatcher *Dispatcher
	worker     *Worker
	counters   *counters
	logger     *SimpleLogger

	syncPatience time.Duration

	dispatchMu sync.RWMutex
	dispatchV  dispatch

	tokenSeq uint32 // atomic, used only by add_broadcast_message to keep tokens unique

	// RTU/ASCII only
	rtuFramer   *RTUFramer
	asciiFramer *ASCIIFramer
	asciiMode   atomic.Bool
}

func newClient(cfg ClientConfig) *Client {
	cfg = cfg.resolve()
	logger := NewSimpleLogger(cfg.Logger, cfg.LogLevel)
	c := &Client{
		queue:        NewRequestQueue(cfg.QueueCapacity),
		syncMap:      NewSyncResponseMap(),
		counters:     &counters{},
		logger:       logger,
		syncPatience: cfg.SyncPatience,
	}
	c.dispatcher = NewDispatcher(c.syncMap, logger, c.currentDispatch)
	return c
}

func (c *Client) currentDispatch() dispatch {
	c.dispatchMu.RLock()
	defer c.dispatchMu.RUnlock()
	return c.dispatchV
}

// NewRTUClient builds a Client driving Modbus RTU over stream at baud,
// with rts toggled around each transmission (nil is a no-op).
func NewRTUClient(cfg ClientConfig, stream ByteStream, baud int, rts RTSFunc) *Client {
	cfg = cfg.resolve()
	c := newClient(cfg)
	c.kind = TransportRTU
	c.rtuFramer = NewRTUFramer(baud, false)
	c.asciiFramer = NewASCIIFramer()
	c.worker = NewRTUWorker(c.queue, c.dispatcher, c.counters, c.logger, stream, baud, rts, false)
	c.worker.SetFramerSelect(c.selectFramer)
	c.worker.SetTimeout(cfg.ResponseTimeout, 0)
	return c
}

// NewTCPClient builds a Client driving Modbus TCP against target
// (host:port), establishing the connection lazily on first request.
func NewTCPClient(cfg ClientConfig, target string) *Client {
	cfg = cfg.resolve()
	c := newClient(cfg)
	c.kind = TransportTCP
	stream := NewUnconnectedTCPByteStream()
	c.worker = NewTCPWorker(c.queue, c.dispatcher, c.counters, c.logger, stream, target)
	c.worker.SetTimeout(cfg.ResponseTimeout, cfg.MinTCPInterval)
	return c
}

func (c *Client) selectFramer() Framer {
	if c.asciiMode.Load() {
		return c.asciiFramer
	}
	return c.rtuFramer
}

// Begin starts the worker goroutine. Handler registration must happen
// before Begin, per spec.md §5's documented precondition.
func (c *Client) Begin() {
	c.worker.Begin()
}

// End stops the worker, draining the queue with QUEUE_CLEARED outcomes.
func (c *Client) End() {
	c.worker.End()
}

// OnDataHandler registers the legacy success callback. Rejected if
// onResponse is already set; replaces an existing onData with a warning.
func (c *Client) OnDataHandler(fn OnDataFunc) bool {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if c.dispatchV.mode == dispatchUnified {
		return false
	}
	if c.dispatchV.mode == dispatchLegacy && c.dispatchV.onData != nil {
		c.logger.Warnf("replacing existing onData handler")
	}
	c.dispatchV.mode = dispatchLegacy
	c.dispatchV.onData = fn
	return true
}

// OnErrorHandler registers the legacy error callback. Same exclusion
// policy as OnDataHandler.
func (c *Client) OnErrorHandler(fn OnErrorFunc) bool {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if c.dispatchV.mode == dispatchUnified {
		return false
	}
	if c.dispatchV.mode == dispatchLegacy && c.dispatchV.onError != nil {
		c.logger.Warnf("replacing existing onError handler")
	}
	c.dispatchV.mode = dispatchLegacy
	c.dispatchV.onError = fn
	return true
}

// OnResponseHandler registers the unified callback. Rejected if either
// leg of the legacy pair is already set.
func (c *Client) OnResponseHandler(fn OnResponseFunc) bool {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if c.dispatchV.mode == dispatchLegacy && (c.dispatchV.onData != nil || c.dispatchV.onError != nil) {
		return false
	}
	c.dispatchV.mode = dispatchUnified
	c.dispatchV.onResponse = fn
	return true
}

// AddRequest admits msg under token for asynchronous delivery, optionally
// through handler (overriding the client-level dispatch for this request
// only).
func (c *Client) AddRequest(token uint32, msg ModbusMessage, handler ResponseHandler) ErrorKind {
	if !msg.IsPresent() {
		return EmptyMessage
	}
	entry := RequestEntry{Token: token, Message: msg, ResponseHandler: handler}
	if !c.queue.TryPush(entry) {
		return RequestQueueFull
	}
	c.counters.incMessage()
	return Success
}

// SyncRequest admits msg under token as a synchronous request and blocks
// until the worker produces a response or syncPatience elapses.
func (c *Client) SyncRequest(token uint32, msg ModbusMessage) ModbusMessage {
	if !msg.IsPresent() {
		var resp ModbusMessage
		resp.SetError(msg.GetServerID(), msg.GetFunctionCode(), EmptyMessage)
		return resp
	}
	entry := RequestEntry{Token: token, Message: msg, IsSync: true}
	if !c.queue.TryPush(entry) {
		var resp ModbusMessage
		resp.SetError(msg.GetServerID(), msg.GetFunctionCode(), RequestQueueFull)
		return resp
	}
	c.counters.incMessage()
	resp := c.syncMap.Wait(token, c.syncPatience)
	return resp
}

// AddBroadcastMessage admits an RTU broadcast (server id 0x00) built from
// data. Requires 0 < len(data) < 254. No reply is awaited: once the frame
// is transmitted, the worker delivers the request message itself as a
// SUCCESS outcome.
func (c *Client) AddBroadcastMessage(data []byte) ErrorKind {
	if c.kind != TransportRTU {
		return BroadcastError
	}
	if len(data) == 0 || len(data) >= 254 {
		return BroadcastError
	}
	msg := NewRequestMessage(0x00, data[0], data[1:])
	token := broadcastTokenMarker | (atomic.AddUint32(&c.tokenSeq, 1) & 0x00FFFFFF)
	entry := RequestEntry{Token: token, Message: msg}
	if !c.queue.TryPush(entry) {
		return RequestQueueFull
	}
	c.counters.incMessage()
	return Success
}

// ClearQueue flips the clear flag; the worker drains every queued entry
// with QUEUE_CLEARED on its next iteration.
func (c *Client) ClearQueue() {
	c.worker.RequestClear()
}

// PendingRequests returns the current queue depth.
func (c *Client) PendingRequests() uint32 {
	return uint32(c.queue.Size())
}

// GetMessageCount returns the number of requests successfully admitted.
func (c *Client) GetMessageCount() uint32 {
	msgs, _ := c.counters.snapshot()
	return msgs
}

// GetErrorCount returns the number of completed requests whose outcome
// was not SUCCESS.
func (c *Client) GetErrorCount() uint32 {
	_, errs := c.counters.snapshot()
	return errs
}

// ResetCounts zeroes both counters atomically with respect to readers.
func (c *Client) ResetCounts() {
	c.counters.reset()
}

// SetTimeout updates the response timeout and, for TCP clients, the
// minimum inter-request interval. A zero duration leaves that setting
// unchanged.
func (c *Client) SetTimeout(responseTimeout, minInterval time.Duration) {
	c.worker.SetTimeout(responseTimeout, minInterval)
}

// SetTarget updates the TCP target address (host:port). TCP only.
func (c *Client) SetTarget(addr string) {
	if c.kind != TransportTCP {
		return
	}
	c.worker.SetTarget(addr)
}

// UseModbusASCII switches an RTU-family client to ASCII framing for
// subsequent requests. RTU/ASCII only.
func (c *Client) UseModbusASCII() {
	if c.kind != TransportRTU {
		return
	}
	c.asciiMode.Store(true)
}

// UseModbusRTU switches back to RTU framing. RTU/ASCII only.
func (c *Client) UseModbusRTU() {
	if c.kind != TransportRTU {
		return
	}
	c.asciiMode.Store(false)
}

// IsModbusASCII reports the current framing mode. RTU/ASCII only.
func (c *Client) IsModbusASCII() bool {
	return c.asciiMode.Load()
}

// SkipLeading0x00 toggles discarding a spurious leading zero byte on
// receive. RTU only (the ASCII framer has no such quirk).
func (c *Client) SkipLeading0x00(on bool) {
	if c.kind != TransportRTU {
		return
	}
	c.rtuFramer.SetSkipLeadingZero(on)
}

// Stats returns the worker's point-in-time snapshot.
func (c *Client) Stats() WorkerStats {
	return c.worker.Stats()
}
