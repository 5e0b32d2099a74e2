// Package hw opens the physical interfaces of the vehicle node: serial
// ports to the motor controllers and the RC receiver, GPIO outputs for
// relays and the status LED, and memory locking for the control loop.
package hw
