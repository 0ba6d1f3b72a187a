//go:build tinygo

package main

import "machine"

const (
	// Serial configuration
	// Must match the relay's display.serial.baud_rate.
	UART_BAUD_RATE = 9600

	// Longest accepted line; longer lines are dropped up to the next newline.
	LINE_BUFFER_SIZE = 128

	// Most entries kept per list; extra entries are dropped.
	MAX_ENTRIES = 16

	// Status LED, toggled on every complete list
	PIN_LED = machine.LED
)
