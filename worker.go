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
	"sync/atomic"
	"time"
)

// TransportKind identifies which of the three wire profiles a Worker
// drives. It picks the pre-transmit rules of spec.md §4.5 step 4.
type TransportKind int

const (
	TransportRTU TransportKind = iota
	TransportASCII
	TransportTCP
)

// DefaultResponseTimeout bounds how long the worker waits for a reply
// after transmitting (spec.md §6).
const DefaultResponseTimeout = 2 * time.Second

// DefaultMinTCPInterval is the minimum gap the worker enforces between
// consecutive requests to the same TCP target (spec.md §4.5, §6).
const DefaultMinTCPInterval = 200 * time.Millisecond

const emptyQueuePollInterval = time.Millisecond

// Worker is the single-consumer loop that serializes transmission,
// enforces transport timing, receives, validates and dispatches
// responses. Exactly one Worker exists per client instance, the way the
// teacher gives each RegisterStream exactly one dispatch goroutine.
type Worker struct {
	kind       TransportKind
	queue      *RequestQueue
	dispatcher *Dispatcher
	counters   *counters
	logger     *SimpleLogger

	framer       Framer
	framerSelect func() Framer // if set, overrides framer per iteration (RTU<->ASCII toggle)
	stream       ByteStream    // valid for all kinds; TCP additionally satisfies TCPByteStream
	rts          RTSFunc       // RTU/ASCII only

	mu              sync.Mutex
	responseTimeout time.Duration
	minTCPInterval  time.Duration
	tcpTarget       string
	silenceInterval time.Duration

	lastActivityMu sync.Mutex
	lastActivity   time.Time
	lastTCPRequest time.Time

	txCounter uint32 // atomic, TCP transaction id source

	clearRequested atomic.Bool
	stopCh         chan struct{}
	stopped        chan struct{}
	once           sync.Once
}

// newWorker builds the shared plumbing; the transport-specific
// constructors below fill in kind, framer and stream.
func newWorker(queue *RequestQueue, dispatcher *Dispatcher, cs *counters, logger *SimpleLogger) *Worker {
	if logger == nil {
		logger = nopLogger
	}
	return &Worker{
		queue:           queue,
		dispatcher:      dispatcher,
		counters:        cs,
		logger:          logger,
		responseTimeout: DefaultResponseTimeout,
		minTCPInterval:  DefaultMinTCPInterval,
		stopCh:          make(chan struct{}),
		stopped:         make(chan struct{}),
	}
}

// NewRTUWorker builds a Worker driving an RTU Framer over stream at baud,
// with rts asserted around each transmission (nil is a no-op).
func NewRTUWorker(queue *RequestQueue, dispatcher *Dispatcher, cs *counters, logger *SimpleLogger, stream ByteStream, baud int, rts RTSFunc, skipLeadingZero bool) *Worker {
	w := newWorker(queue, dispatcher, cs, logger)
	w.kind = TransportRTU
	w.stream = stream
	w.rts = rts
	w.framer = NewRTUFramer(baud, skipLeadingZero)
	w.silenceInterval = rtuSilence(baud)
	return w
}

// NewASCIIWorker builds a Worker driving an ASCII Framer over the same
// kind of serial bus, which still needs the RTU bus's inter-frame silence
// for multi-drop arbitration even though ASCII frames are self-delimiting.
func NewASCIIWorker(queue *RequestQueue, dispatcher *Dispatcher, cs *counters, logger *SimpleLogger, stream ByteStream, baud int, rts RTSFunc) *Worker {
	w := newWorker(queue, dispatcher, cs, logger)
	w.kind = TransportASCII
	w.stream = stream
	w.rts = rts
	w.framer = NewASCIIFramer()
	w.silenceInterval = rtuSilence(baud)
	return w
}

// NewTCPWorker builds a Worker driving a TCP/MBAP Framer over stream,
// which must also implement TCPByteStream.
func NewTCPWorker(queue *RequestQueue, dispatcher *Dispatcher, cs *counters, logger *SimpleLogger, stream TCPByteStream, target string) *Worker {
	w := newWorker(queue, dispatcher, cs, logger)
	w.kind = TransportTCP
	w.stream = stream
	w.tcpTarget = target
	w.framer = NewTCPFramer(w.nextTransactionID)
	return w
}

// SetFramerSelect installs a hook the worker consults on every
// transmission instead of its fixed framer, used by RTU-family clients to
// implement the use_modbus_ascii/use_modbus_rtu runtime toggle without
// tearing down the worker.
func (w *Worker) SetFramerSelect(fn func() Framer) {
	w.framerSelect = fn
}

func (w *Worker) currentFramer() Framer {
	if w.framerSelect != nil {
		return w.framerSelect()
	}
	return w.framer
}

func (w *Worker) nextTransactionID(ModbusMessage) uint16 {
	id := atomic.AddUint32(&w.txCounter, 1)
	return uint16(id)
}

// SetTimeout updates the response timeout and, for TCP, the minimum
// inter-request interval (spec.md §4.7 set_timeout). A zero value leaves
// the corresponding setting unchanged.
func (w *Worker) SetTimeout(responseTimeout, minInterval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if responseTimeout > 0 {
		w.responseTimeout = responseTimeout
	}
	if minInterval > 0 {
		w.minTCPInterval = minInterval
	}
}

// SetTarget updates the TCP target. The race with an in-flight dequeue is
// accepted per spec.md §5: the new target takes effect on or after the
// next dequeue.
func (w *Worker) SetTarget(addr string) {
	w.mu.Lock()
	w.tcpTarget = addr
	w.mu.Unlock()
	if tcs, ok := w.stream.(TCPByteStream); ok {
		_ = tcs.Disconnect()
	}
}

func (w *Worker) snapshotTiming() (respTimeout, minInterval time.Duration, target string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.responseTimeout, w.minTCPInterval, w.tcpTarget
}

// RequestClear flips the clear flag; the worker drains the queue on its
// next iteration (spec.md §4.5 step 2).
func (w *Worker) RequestClear() {
	w.clearRequested.Store(true)
}

// Stats reports the counters, current queue depth and the timestamp of the
// most recent transmit or receive activity.
func (w *Worker) Stats() WorkerStats {
	msgs, errs := w.counters.snapshot()
	w.lastActivityMu.Lock()
	last := w.lastActivity
	w.lastActivityMu.Unlock()
	return WorkerStats{
		Pending:      uint32(w.queue.Size()),
		MessageCount: msgs,
		ErrorCount:   errs,
		LastActivity: last,
	}
}

// WorkerStats is a point-in-time snapshot, exposed through Client.Stats, of
// the values behind the façade's pending_requests/get_message_count/
// get_error_count trio, plus the last activity timestamp used for
// idle-link diagnostics.
type WorkerStats struct {
	Pending      uint32
	MessageCount uint32
	ErrorCount   uint32
	LastActivity time.Time
}

// Begin launches the worker loop. It must be called exactly once per
// Worker.
func (w *Worker) Begin() {
	go w.run()
}

// End signals the loop to stop and blocks until it has drained the queue
// and exited, per the teardown contract of spec.md §5: every admitted
// request still produces an outcome.
func (w *Worker) End() {
	w.once.Do(func() { close(w.stopCh) })
	<-w.stopped
}

func (w *Worker) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.stopCh:
			w.clearAll()
			return
		default:
		}

		if w.clearRequested.CompareAndSwap(true, false) {
			w.clearAll()
			continue
		}

		entry, ok := w.queue.Front()
		if !ok {
			time.Sleep(emptyQueuePollInterval)
			continue
		}

		outcome := w.process(entry)
		w.queue.Pop()
		if outcome != Success {
			w.counters.incError()
		}
	}
}

// clearAll drains the queue and synthesizes a QUEUE_CLEARED outcome for
// every entry still waiting, guarding nil handlers and never decrementing
// message_count per the spec.md §9 fix.
func (w *Worker) clearAll() {
	drained := w.queue.ClearAll()
	for _, entry := range drained {
		var resp ModbusMessage
		resp.SetError(entry.Message.GetServerID(), entry.Message.GetFunctionCode(), QueueCleared)
		w.dispatcher.Deliver(entry, resp)
		w.counters.incError()
	}
}

func (w *Worker) process(entry RequestEntry) ErrorKind {
	if w.kind == TransportTCP {
		return w.processTCP(entry)
	}
	return w.processSerial(entry)
}

func (w *Worker) processSerial(entry RequestEntry) ErrorKind {
	respTimeout, _, _ := w.snapshotTiming()

	w.waitSilence()

	framer := w.currentFramer()
	frame, err := framer.Encode(entry.Message)
	if err != nil {
		return w.fail(entry, EmptyMessage)
	}

	if w.rts != nil {
		w.rts(true)
	}
	_, werr := w.stream.Write(frame)
	w.markActivity()
	if w.rts != nil {
		w.rts(false)
	}
	if werr != nil {
		w.logger.Errorf("write failed: %v", werr)
		return w.fail(entry, UndefinedError)
	}

	if entry.isBroadcast() && entry.Message.GetServerID() == 0 {
		w.dispatcher.Deliver(entry, entry.Message)
		return Success
	}

	resp, kind := framer.Decode(w.stream, respTimeout)
	w.markActivity()
	if kind != Success {
		return w.fail(entry, kind)
	}

	if valid := validateCorrelation(entry.Message, resp); valid != Success {
		return w.fail(entry, valid)
	}

	w.dispatcher.Deliver(entry, resp)
	return resp.GetError()
}

func (w *Worker) processTCP(entry RequestEntry) ErrorKind {
	respTimeout, minInterval, target := w.snapshotTiming()
	tcs, ok := w.stream.(TCPByteStream)
	if !ok {
		return w.fail(entry, IPConnectionFailed)
	}

	if !tcs.Connected() {
		if err := tcs.Connect(target, respTimeout); err != nil {
			w.logger.Errorf("tcp connect to %s failed: %v", target, err)
			return w.fail(entry, IPConnectionFailed)
		}
		_ = tcs.SetNoDelay(true)
	}

	w.waitMinInterval(minInterval)

	frame, err := w.framer.Encode(entry.Message)
	if err != nil {
		return w.fail(entry, EmptyMessage)
	}

	if _, werr := w.stream.Write(frame); werr != nil {
		w.logger.Errorf("tcp write failed: %v", werr)
		_ = tcs.Disconnect()
		return w.fail(entry, IPConnectionFailed)
	}
	w.markTCPRequest()
	w.markActivity()

	resp, kind := w.framer.Decode(w.stream, respTimeout)
	w.markActivity()
	if kind != Success {
		return w.fail(entry, kind)
	}

	if valid := validateCorrelation(entry.Message, resp); valid != Success {
		return w.fail(entry, valid)
	}

	w.dispatcher.Deliver(entry, resp)
	return resp.GetError()
}

// fail synthesizes a uniform error response for entry and delivers it.
func (w *Worker) fail(entry RequestEntry, kind ErrorKind) ErrorKind {
	var resp ModbusMessage
	resp.SetError(entry.Message.GetServerID(), entry.Message.GetFunctionCode(), kind)
	w.dispatcher.Deliver(entry, resp)
	return kind
}

// validateCorrelation applies spec.md §4.5 step 7's server-id and
// function-code checks. Transaction-id mismatch (TCP) is already caught
// inside TCPFramer.Decode; an exception response (top bit set) still
// needs to originate from the right server and answer the right base
// function code, so it is not exempted here.
func validateCorrelation(request, response ModbusMessage) ErrorKind {
	if response.GetServerID() != request.GetServerID() {
		return ServerIDMismatch
	}
	if response.BaseFunctionCode() != request.BaseFunctionCode() {
		return FCMismatch
	}
	return Success
}

func (w *Worker) markActivity() {
	w.lastActivityMu.Lock()
	w.lastActivity = time.Now()
	w.lastActivityMu.Unlock()
}

func (w *Worker) markTCPRequest() {
	w.lastActivityMu.Lock()
	w.lastTCPRequest = time.Now()
	w.lastActivityMu.Unlock()
}

// waitSilence sleeps until at least silenceInterval has elapsed since
// the last bus activity, per the RTU/ASCII pre-transmit rule of spec.md
// §4.2 and §4.5 step 4.
func (w *Worker) waitSilence() {
	w.lastActivityMu.Lock()
	last := w.lastActivity
	w.lastActivityMu.Unlock()
	if last.IsZero() {
		return
	}
	for {
		elapsed := time.Since(last)
		if elapsed >= w.silenceInterval {
			return
		}
		time.Sleep(w.silenceInterval - elapsed)
	}
}

func (w *Worker) waitMinInterval(minInterval time.Duration) {
	w.lastActivityMu.Lock()
	last := w.lastTCPRequest
	w.lastActivityMu.Unlock()
	if last.IsZero() || minInterval <= 0 {
		return
	}
	for {
		elapsed := time.Since(last)
		if elapsed >= minInterval {
			return
		}
		time.Sleep(minInterval - elapsed)
	}
}
