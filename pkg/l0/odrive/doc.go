// Package odrive implements the two wire protocols of the steering
// position controller: the line based text protocol on a UART and the
// CANSimple protocol on a CAN bus. Both are exposed as an Axis with
// the same operations.
package odrive
