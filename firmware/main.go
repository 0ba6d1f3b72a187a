//go:build tinygo

//go:generate tinygo flash -target=xiao

// Display controller side of the relay link. Reads framed lists from the
// UART and prints each completed list on the USB console.
package main

import (
	"machine"
	"time"

	"github.com/itohio/spotcheck/pkg/framing"
)

var (
	uart = machine.UART0

	// Serial buffer for reading lines
	lineBuffer [LINE_BUFFER_SIZE]byte
	linePos    int
	overflow   bool

	// List being received
	entries    [MAX_ENTRIES]string
	entryCount int
	inList     bool

	ledOn bool
)

func main() {
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	for {
		processSerial()
		time.Sleep(time.Millisecond)
	}
}

func processSerial() {
	// Read available bytes from serial
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\r' {
			continue
		}
		if data == '\n' {
			if !overflow {
				processLine(string(lineBuffer[:linePos]))
			}
			linePos = 0
			overflow = false
			continue
		}

		if linePos < LINE_BUFFER_SIZE {
			lineBuffer[linePos] = data
			linePos++
		} else {
			overflow = true
		}
	}
}

func processLine(line string) {
	switch {
	case line == framing.StartList:
		// A new start discards a list that never ended
		inList = true
		entryCount = 0
	case line == framing.EndList:
		if inList {
			showList()
		}
		inList = false
	case inList:
		if n := len(line); n > 0 && line[n-1] == framing.Terminator {
			line = line[:n-1]
		}
		if entryCount < MAX_ENTRIES {
			entries[entryCount] = line
			entryCount++
		}
	}
}

func showList() {
	print("--- ")
	print(entryCount)
	print(" entries ---\n")
	for i := 0; i < entryCount; i++ {
		print(entries[i])
		print("\n")
	}

	ledOn = !ledOn
	if ledOn {
		PIN_LED.High()
	} else {
		PIN_LED.Low()
	}
}
