// Package vesc implements the byte-framed serial protocol spoken by the
// traction motor controllers.
package vesc

// A frame on the wire is
//
//	0x02 | len | payload[len] | crc16 hi | crc16 lo | 0x03
//
// where the CRC is CRC-16/XMODEM over the payload only. The first
// payload byte is the command id. Replies carry the same command id as
// the request, there is no sequence number, so requests are correlated
// with replies by command id and ordering.
//
// Producer: traction controller firmware
// Consumer: vehicle node
