package vesc

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
)

// DefaultFrameTimeout is how long a partial frame may take to complete.
const DefaultFrameTimeout = 50 * time.Millisecond

// PayloadHandler is called when a valid frame is received.
type PayloadHandler interface {
	HandlePayload(context.Context, []byte)
}

// HandlePayloadFunc is func type of PayloadHandler.
type HandlePayloadFunc func(context.Context, []byte)

// HandlePayload implements PayloadHandler.
func (f HandlePayloadFunc) HandlePayload(ctx context.Context, payload []byte) {
	f(ctx, payload)
}

// Stream sends and receives frames over a serial port.
type Stream struct {
	ReadWriter   io.ReadWriter
	Handler      PayloadHandler
	FrameTimeout time.Duration
	Clock        clock.Clock
	Name         string

	writeLock sync.Mutex
	parser    Parser
	timer     <-chan time.Time

	statsLock sync.Mutex
	stats     Stats
}

// Stats counts frame level events.
type Stats struct {
	Frames    uint64
	BadFrames uint64
	Timeouts  uint64
}

// NewStream creates a Stream.
func NewStream(rw io.ReadWriter) *Stream {
	return &Stream{
		ReadWriter:   rw,
		FrameTimeout: DefaultFrameTimeout,
		Clock:        clock.New(),
	}
}

// Send frames and writes a payload.
func (s *Stream) Send(payload []byte) error {
	b, err := Encode(payload)
	if err != nil {
		return err
	}
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if glog.V(2) {
		glog.Infof("%s TX % x", s.Name, b)
	}
	_, err = s.ReadWriter.Write(b)
	return err
}

// Stats returns a snapshot of the frame counters.
func (s *Stream) Stats() Stats {
	s.statsLock.Lock()
	defer s.statsLock.Unlock()
	return s.stats
}

// Run receives frames until the context is canceled or the port fails.
func (s *Stream) Run(ctx context.Context) error {
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	chunkCh, errCh := make(chan []byte), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.readLoop(subCtx, chunkCh, errCh)
	for {
		select {
		case chunk := <-chunkCh:
			for _, b := range chunk {
				s.applyParseResult(ctx, s.parser.Parse(b))
			}
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-s.timer:
			s.timer = nil
			if s.parser.Receiving() {
				glog.Warningf("%s partial frame dropped after %v", s.Name, s.FrameTimeout)
				s.count(func(st *Stats) { st.Timeouts++ })
			}
			s.applyParseResult(ctx, s.parser.Timeout())
		}
	}
}

func (s *Stream) readLoop(ctx context.Context, chunkCh chan []byte, errCh chan error) {
	buf := make([]byte, RxBufferSize)
	for {
		n, err := s.ReadWriter.Read(buf)
		if err != nil {
			errCh <- err
			return
		}
		if n == 0 {
			// ports opened with an inter-character timeout return 0 on idle.
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		chunk := append([]byte(nil), buf[:n]...)
		select {
		case chunkCh <- chunk:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Stream) applyParseResult(ctx context.Context, pr ParseResult) {
	switch pr.WhatAboutTimer() {
	case TimerRestart:
		s.timer = s.Clock.After(s.frameTimeout())
	case TimerStop:
		s.timer = nil
	}
	if pr.Err != nil {
		glog.Warningf("%s frame dropped: %v", s.Name, pr.Err)
		s.count(func(st *Stats) { st.BadFrames++ })
		return
	}
	if pr.Payload != nil {
		s.count(func(st *Stats) { st.Frames++ })
		if glog.V(2) {
			glog.Infof("%s RX %s % x", s.Name, Command(pr.Payload[0]), pr.Payload[1:])
		}
		if h := s.Handler; h != nil {
			h.HandlePayload(ctx, pr.Payload)
		}
	}
}

func (s *Stream) frameTimeout() time.Duration {
	if s.FrameTimeout > 0 {
		return s.FrameTimeout
	}
	return DefaultFrameTimeout
}

func (s *Stream) count(fn func(*Stats)) {
	s.statsLock.Lock()
	fn(&s.stats)
	s.statsLock.Unlock()
}
