//go:build avr

package main

import (
	"machine"
	"time"

	"xlr8rc/core"
)

// UART rate the host expects
const baudRate = 115200

func main() {
	uart := machine.Serial
	uart.Configure(machine.UARTConfig{BaudRate: baudRate})

	// The UART carries the protocol; debug text would corrupt it
	core.SetDebugEnabled(false)

	core.InitCoreCommands()
	core.RegisterConstant("SERIAL_BAUD", uint32(baudRate))

	registry := core.NewRCRegistry(XLR8Registers{}, AVRGPIODriver{}, core.RCPin)
	core.InitRCCommands(registry)

	// Build and cache dictionary after all commands registered
	core.GetGlobalDictionary().BuildDictionary()

	fw := core.NewFirmware(uart)

	buf := make([]byte, 16)
	for {
		n := 0
		for n < len(buf) && uart.Buffered() > 0 {
			b, err := uart.ReadByte()
			if err != nil {
				break
			}
			buf[n] = b
			n++
		}
		if n > 0 {
			fw.Feed(buf[:n])
			continue
		}
		time.Sleep(100 * time.Microsecond)
	}
}
