package vesc

import "encoding/binary"

// RxBufferSize bounds the bytes buffered for one frame.
const RxBufferSize = 512

// Parser reassembles frames from a byte stream.
type Parser struct {
	state    parseState
	buf      [RxBufferSize]byte
	recvLen  int
	frameLen int
}

// ParseResult indicates the result after one parsing step.
type ParseResult struct {
	// Payload is set when a valid frame completes.
	Payload []byte
	// Err is ErrBadFrame when a complete frame failed validation.
	Err error
	// Started is true when this byte started a new frame.
	Started bool
	// Receiving is true while a frame is partially received.
	Receiving bool
}

// TimerAction defines what to do with the frame timer.
type TimerAction int

const (
	// TimerNoChange indicates keep the timer as-is.
	TimerNoChange TimerAction = iota
	// TimerRestart to restart the timer.
	TimerRestart
	// TimerStop to stop/cancel the timer.
	TimerStop
)

// WhatAboutTimer decides what to do with the frame timer. The timer
// runs from the start byte, so a frame trickling in slower than the
// frame timeout is dropped.
func (r ParseResult) WhatAboutTimer() TimerAction {
	if r.Started {
		return TimerRestart
	}
	if !r.Receiving {
		return TimerStop
	}
	return TimerNoChange
}

type parseState int

const (
	stateWaitStart parseState = iota // skipping until 0x02
	stateWaitLen                     // next byte is the payload length
	stateBody                        // accumulating payload, crc and end byte
	stateValidate                    // frame complete, checking end byte and crc
)

// Receiving indicates a frame is partially received.
func (p *Parser) Receiving() bool {
	return p.state != stateWaitStart
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state, p.recvLen, p.frameLen = stateWaitStart, 0, 0
}

// Timeout notifies the parser the frame timer expired. A partial frame
// is discarded.
func (p *Parser) Timeout() (pr ParseResult) {
	p.Reset()
	return
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	switch p.state {
	case stateWaitStart:
		if b == StartShort {
			p.buf[0], p.recvLen = b, 1
			p.state = stateWaitLen
			pr.Started = true
		}
	case stateWaitLen:
		p.buf[1], p.recvLen = b, 2
		p.frameLen = int(b) + frameOverhead
		p.state = stateBody
	case stateBody:
		p.buf[p.recvLen] = b
		p.recvLen++
		if p.recvLen >= p.frameLen {
			p.state = stateValidate
			pr.Payload, pr.Err = p.validate()
		}
	}
	pr.Receiving = p.Receiving()
	return
}

func (p *Parser) validate() ([]byte, error) {
	defer p.Reset()
	frame := p.buf[:p.frameLen]
	n := p.frameLen - frameOverhead
	if n < 1 || frame[p.frameLen-1] != End {
		return nil, ErrBadFrame
	}
	payload := frame[2 : 2+n]
	if binary.BigEndian.Uint16(frame[2+n:]) != CRC16(payload) {
		return nil, ErrBadFrame
	}
	return append([]byte(nil), payload...), nil
}
