package telemetry

import (
	"context"
	"net"
	"sync"
)

// DatagramSender sends datagrams without blocking.
type DatagramSender interface {
	Send(dst *net.UDPAddr, b []byte) error
}

// UDPSink sends the CSV datagram.
type UDPSink struct {
	Sender DatagramSender
	Dst    *net.UDPAddr
}

// Publish implements Sink.
func (s *UDPSink) Publish(ctx context.Context, rec Record) error {
	return s.Sender.Send(s.Dst, []byte(rec.CSV()))
}

// Async moves a blocking sink off the loop goroutine. Only the newest
// record is kept while the sink is busy.
type Async struct {
	Sink Sink

	recCh chan Record

	lock    sync.Mutex
	lastErr error
	skipped uint64
}

// NewAsync wraps a sink.
func NewAsync(sink Sink) *Async {
	return &Async{Sink: sink, recCh: make(chan Record, 1)}
}

// Publish implements Sink. It returns the error of the last delivery.
func (a *Async) Publish(ctx context.Context, rec Record) error {
	for {
		select {
		case a.recCh <- rec:
			a.lock.Lock()
			defer a.lock.Unlock()
			return a.lastErr
		default:
		}
		select {
		case <-a.recCh:
			a.lock.Lock()
			a.skipped++
			a.lock.Unlock()
		default:
		}
	}
}

// Skipped is the number of records replaced before delivery.
func (a *Async) Skipped() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.skipped
}

// Run implements framework.Runnable.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-a.recCh:
			err := a.Sink.Publish(ctx, rec)
			a.lock.Lock()
			a.lastErr = err
			a.lock.Unlock()
		}
	}
}
