package dap

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// RequestTimeout bounds how long a single in-flight request waits for
// its matching response before it is rejected with ErrRequestTimeout.
const RequestTimeout = 10 * time.Second

// ErrRequestTimeout is returned when a request's pending entry expires
// before a matching response arrives.
type ErrRequestTimeout struct {
	Command string
	Seq     int
	Timeout time.Duration
}

func (e *ErrRequestTimeout) Error() string {
	return fmt.Sprintf("dap: request %d (%s) timed out after %s", e.Seq, e.Command, e.Timeout)
}

// ErrAdapterRejected is returned when the adapter responds with success=false.
type ErrAdapterRejected struct {
	Command string
	Seq     int
	Message string
}

func (e *ErrAdapterRejected) Error() string {
	return fmt.Sprintf("dap: request %d (%s) rejected: %s", e.Seq, e.Command, e.Message)
}

// ErrDisconnected is returned to every pending request when the
// transport is torn down before a response arrives.
var ErrDisconnected = fmt.Errorf("dap: transport disconnected")

type pendingRequest struct {
	command string
	seq     int
	done    chan struct{}
	once    sync.Once
	body    json.RawMessage
	err     error
	timer   *time.Timer
}

func (p *pendingRequest) resolve(body json.RawMessage, err error) {
	p.once.Do(func() {
		p.body = body
		p.err = err
		if p.timer != nil {
			p.timer.Stop()
		}
		close(p.done)
	})
}

// Correlator assigns strictly increasing sequence numbers to outbound
// requests and matches inbound responses back to them by request_seq.
// It is safe for concurrent use: responses may arrive out of order, and
// events may be interleaved between a request and its response.
type Correlator struct {
	transport *Transport
	timeout   time.Duration

	mu      sync.Mutex
	nextSeq int
	pending map[int]*pendingRequest
	closed  bool
}

// NewCorrelator builds a Correlator writing requests through transport.
// Sequence numbers start at 1. A non-positive timeout falls back to
// RequestTimeout, so callers that don't have a configured value (tests,
// mainly) keep the previous default.
func NewCorrelator(transport *Transport, timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = RequestTimeout
	}
	return &Correlator{
		transport: transport,
		timeout:   timeout,
		nextSeq:   1,
		pending:   make(map[int]*pendingRequest),
	}
}

// Send assigns the next sequence number, frames and writes the request,
// and blocks until the matching response is resolved, rejected, or
// times out.
func (c *Correlator) Send(command string, args any) (json.RawMessage, error) {
	var rawArgs json.RawMessage
	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("dap: marshal arguments for %s: %w", command, err)
		}
		rawArgs = encoded
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrDisconnected
	}
	seq := c.nextSeq
	c.nextSeq++

	pr := &pendingRequest{command: command, seq: seq, done: make(chan struct{})}
	pr.timer = time.AfterFunc(c.timeout, func() {
		c.reject(seq, &ErrRequestTimeout{Command: command, Seq: seq, Timeout: c.timeout})
	})
	c.pending[seq] = pr
	c.mu.Unlock()

	req := Request{
		ProtocolMessage: ProtocolMessage{Seq: seq, Type: "request"},
		Command:         command,
		Arguments:       rawArgs,
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		c.removePending(seq)
		return nil, fmt.Errorf("dap: marshal request %s: %w", command, err)
	}

	if err := c.transport.Send(encoded); err != nil {
		c.reject(seq, fmt.Errorf("dap: send request %s: %w", command, err))
	}

	<-pr.done
	return pr.body, pr.err
}

// HandleResponse resolves or rejects the pending request named by
// resp.RequestSeq. A response with no matching pending entry (already
// timed out, or a stray) is ignored.
func (c *Correlator) HandleResponse(resp *Response) {
	if resp.Success {
		c.resolve(resp.RequestSeq, resp.Body)
		return
	}
	pr := c.removePending(resp.RequestSeq)
	if pr == nil {
		return
	}
	pr.resolve(nil, &ErrAdapterRejected{Command: resp.Command, Seq: resp.RequestSeq, Message: resp.Message})
}

func (c *Correlator) resolve(seq int, body json.RawMessage) {
	pr := c.removePending(seq)
	if pr == nil {
		return
	}
	pr.resolve(body, nil)
}

func (c *Correlator) reject(seq int, err error) {
	pr := c.removePending(seq)
	if pr == nil {
		return
	}
	pr.resolve(nil, err)
}

func (c *Correlator) removePending(seq int) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	pr := c.pending[seq]
	delete(c.pending, seq)
	return pr
}

// Shutdown rejects every outstanding request with a disconnection error
// and marks the Correlator closed; subsequent Send calls fail fast.
func (c *Correlator) Shutdown() {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[int]*pendingRequest)
	c.mu.Unlock()

	for _, pr := range pending {
		pr.resolve(nil, ErrDisconnected)
	}
}
