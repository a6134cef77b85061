// Package endpoint implements the async request/response framing (component
// A of the HID++ design) over a raw HID file descriptor: one outstanding
// request at a time, asynchronous notification filters, and per-command
// timeouts.
package endpoint

import (
	"errors"
	"io"
	"sync"
	"time"
)

// ErrQueueFull is returned by Post when the bounded outbound queue (4
// slots) is already full.
var ErrQueueFull = errors.New("endpoint: request queue full")

// ErrTimeout is passed to onError when a command's deadline expires
// before a matching reply arrives.
var ErrTimeout = errors.New("endpoint: command timed out")

// ErrClosed is passed to onError for requests still queued or in flight
// when the endpoint is destroyed.
var ErrClosed = errors.New("endpoint: destroyed")

// HIDDevice is the raw transport an Endpoint drives. The real
// implementation opens /dev/hidraw*; tests substitute an in-memory fake.
type HIDDevice interface {
	io.ReadWriteCloser
}

const queueDepth = 4

// request is one queued outbound report.
type request struct {
	frame   []byte
	accept  func([]byte) bool
	onReply func([]byte)
	onError func(error)
}

// Endpoint serialises one outstanding HID report request at a time over a
// HIDDevice, demultiplexing unsolicited notifications to registered frame
// filters.
type Endpoint struct {
	dev        HIDDevice
	readSize   int
	timeout    time.Duration

	mu      sync.Mutex
	filters map[any]func([]byte) bool

	queue chan *request
	done  chan struct{}
	once  sync.Once
}

// New creates an Endpoint over dev. readSize must be at least the largest
// report payload plus one (for the leading report-id byte); reads always
// fill a buffer of that size.
func New(dev HIDDevice, readSize int) *Endpoint {
	e := &Endpoint{
		dev:      dev,
		readSize: readSize,
		timeout:  time.Second,
		filters:  make(map[any]func([]byte) bool),
		queue:    make(chan *request, queueDepth),
		done:     make(chan struct{}),
	}
	go e.run()
	return e
}

// SetTimeout sets the per-command deadline. Zero disables the deadline.
func (e *Endpoint) SetTimeout(d time.Duration) {
	e.mu.Lock()
	e.timeout = d
	e.mu.Unlock()
}

// RegisterFrameFilter installs fn, keyed by ref, to intercept inbound
// reports before any pending request sees them. fn returning true
// consumes the frame.
func (e *Endpoint) RegisterFrameFilter(ref any, fn func([]byte) bool) {
	e.mu.Lock()
	e.filters[ref] = fn
	e.mu.Unlock()
}

// UnregisterFrameFilter removes the filter registered under ref.
func (e *Endpoint) UnregisterFrameFilter(ref any) {
	e.mu.Lock()
	delete(e.filters, ref)
	e.mu.Unlock()
}

// Post enqueues an outbound report. accept is invoked on every inbound
// report not consumed by a filter; the first one it accepts is delivered
// to onReply. onError fires on send failure, destruction, or timeout.
// Post returns false if the bounded queue is already full.
func (e *Endpoint) Post(frame []byte, accept func([]byte) bool, onReply func([]byte), onError func(error)) bool {
	req := &request{frame: frame, accept: accept, onReply: onReply, onError: onError}
	select {
	case e.queue <- req:
		return true
	default:
		return false
	}
}

// Close stops the endpoint, failing any queued or in-flight request with
// ErrClosed, and closes the underlying device.
func (e *Endpoint) Close() error {
	e.once.Do(func() { close(e.done) })
	return e.dev.Close()
}

func (e *Endpoint) run() {
	for {
		select {
		case <-e.done:
			e.drain()
			return
		case req := <-e.queue:
			e.serve(req)
		}
	}
}

func (e *Endpoint) drain() {
	for {
		select {
		case req := <-e.queue:
			req.onError(ErrClosed)
		default:
			return
		}
	}
}

// serve writes req's frame and waits for either a matching reply, the
// per-command timeout, or endpoint destruction — the Sending /
// AwaitingReply / SendingReplyReceived states of the endpoint's state
// machine collapse naturally into this synchronous call, since only one
// request is ever in flight.
func (e *Endpoint) serve(req *request) {
	if _, err := e.dev.Write(req.frame); err != nil {
		req.onError(err)
		return
	}

	e.mu.Lock()
	timeout := e.timeout
	e.mu.Unlock()

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	buf := make([]byte, e.readSize)
	for {
		readDone := make(chan struct{})
		var n int
		var readErr error
		go func() {
			n, readErr = e.dev.Read(buf)
			close(readDone)
		}()

		select {
		case <-e.done:
			req.onError(ErrClosed)
			return
		case <-deadline:
			req.onError(ErrTimeout)
			return
		case <-readDone:
			if readErr != nil {
				req.onError(readErr)
				return
			}
			frame := append([]byte(nil), buf[:n]...)
			if e.consumeByFilter(frame) {
				continue
			}
			if req.accept(frame) {
				req.onReply(frame)
				return
			}
			// Frame doesn't match the outstanding request: discard and
			// keep waiting, per testable property 2.
		}
	}
}

func (e *Endpoint) consumeByFilter(frame []byte) bool {
	e.mu.Lock()
	filters := make([]func([]byte) bool, 0, len(e.filters))
	for _, fn := range e.filters {
		filters = append(filters, fn)
	}
	e.mu.Unlock()

	for _, fn := range filters {
		if fn(frame) {
			return true
		}
	}
	return false
}
