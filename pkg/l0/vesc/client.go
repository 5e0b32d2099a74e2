package vesc

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultReplyTimeout bounds how long a request waits for its reply.
const DefaultReplyTimeout = 100 * time.Millisecond

// Result is the reply of a request.
type Result struct {
	Err     error
	Payload []byte
}

// Request represents a pending request waiting for reply.
type Request struct {
	command  Command
	resultCh chan Result
	next     *Request
}

// Command returns the command id the reply is expected to carry.
func (r *Request) Command() Command {
	return r.command
}

// ResultChan returns the chan to retrieve result.
func (r *Request) ResultChan() <-chan Result {
	return r.resultCh
}

// Client provides request/response over a Stream.
type Client struct {
	ReplyTimeout time.Duration
	// Observer sees every received payload after correlation, including
	// replies nobody waits for.
	Observer PayloadHandler

	stream  *Stream
	clock   clock.Clock
	head    *Request
	tail    *Request
	reqLock sync.Mutex
}

// NewClient creates client and wraps the stream.
func NewClient(stream *Stream) *Client {
	c := &Client{
		ReplyTimeout: DefaultReplyTimeout,
		stream:       stream,
		clock:        stream.Clock,
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	stream.Handler = c
	return c
}

// Stream gets the wrapped stream.
func (c *Client) Stream() *Stream {
	return c.stream
}

// Send sends a payload which expects no reply.
func (c *Client) Send(payload []byte) error {
	return c.stream.Send(payload)
}

// Do sends a payload and returns a Request for the reply. The reply is
// matched by the command id of the innermost payload, so forwarded
// requests are matched too.
func (c *Client) Do(payload []byte) *Request {
	req := &Request{command: replyCommand(payload), resultCh: make(chan Result, 1)}

	c.reqLock.Lock()
	defer c.reqLock.Unlock()
	if err := c.stream.Send(payload); err != nil {
		req.resultCh <- Result{Err: err}
		return req
	}
	if c.head == nil {
		c.head = req
	} else {
		c.tail.next = req
	}
	c.tail = req
	return req
}

// Call sends a payload and waits for the reply.
func (c *Client) Call(ctx context.Context, payload []byte) ([]byte, error) {
	req := c.Do(payload)
	timeout := c.ReplyTimeout
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	timer := c.clock.Timer(timeout)
	defer timer.Stop()
	select {
	case res := <-req.resultCh:
		return res.Payload, res.Err
	case <-timer.C:
		c.cancel(req)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.cancel(req)
		return nil, ctx.Err()
	}
}

// HandlePayload implements PayloadHandler.
func (c *Client) HandlePayload(ctx context.Context, payload []byte) {
	cmd := Command(payload[0])
	c.reqLock.Lock()
	head, curr := c.head, c.head
	for ; curr != nil; curr = curr.next {
		if curr.command == cmd {
			if c.head = curr.next; c.head == nil {
				c.tail = nil
			}
			curr.next = nil
			break
		}
	}
	c.reqLock.Unlock()
	if curr != nil {
		for ; head != curr; head = head.next {
			head.resultCh <- Result{Err: ErrNoReply}
		}
		curr.resultCh <- Result{Payload: payload}
	}
	if o := c.Observer; o != nil {
		o.HandlePayload(ctx, payload)
	}
}

// Pending returns the number of requests waiting for reply.
func (c *Client) Pending() (n int) {
	c.reqLock.Lock()
	defer c.reqLock.Unlock()
	for r := c.head; r != nil; r = r.next {
		n++
	}
	return
}

// Run wraps Stream.Run to implement Runnable.
func (c *Client) Run(ctx context.Context) error {
	return c.stream.Run(ctx)
}

func (c *Client) cancel(req *Request) {
	c.reqLock.Lock()
	defer c.reqLock.Unlock()
	var prev *Request
	for r := c.head; r != nil; prev, r = r, r.next {
		if r != req {
			continue
		}
		if prev == nil {
			c.head = r.next
		} else {
			prev.next = r.next
		}
		if c.tail == r {
			c.tail = prev
		}
		r.next = nil
		return
	}
}

func replyCommand(payload []byte) Command {
	for len(payload) > 2 && Command(payload[0]) == CommForwardCAN {
		payload = payload[2:]
	}
	if len(payload) == 0 {
		return 0
	}
	return Command(payload[0])
}
