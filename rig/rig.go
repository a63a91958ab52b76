// Package rig selects one board of a multi-board flashing rig by
// driving the rig's GPIO mux lines. Slot numbering starts at 1; slot 0
// releases the mux.
package rig

import (
	"log"

	"github.com/spf13/viper"
	"github.com/stianeikeland/go-rpio"
)

var slot []int
var ConsolePins []int

// Open claims the GPIO memory range. Must be called before any select.
func Open() error {
	return rpio.Open()
}

func Close() error {
	return rpio.Close()
}

// InitConsoleLevel configures the console mux lines and parks them in
// their idle state.
func InitConsoleLevel() {
	slot = viper.GetIntSlice("slot")
	ConsolePins = viper.GetIntSlice("uartio")

	for _, pin := range ConsolePins {
		log.Printf("Set pin%d as output\n", pin)
		rpio.Pin(pin).Output()
	}
	for i, pin := range ConsolePins {
		if i == len(ConsolePins)-1 {
			rpio.Pin(pin).High()
			continue
		}
		rpio.Pin(pin).Low()
	}
}

// SelectConsole routes the shared UART to the given slot.
func SelectConsole(slotID uint8) {
	rpio.Pin(slot[slotID-1]).Toggle()
	log.Printf("slot: %d, toggled pin: %d", slotID, slot[slotID-1])
}

// SelectJTAG routes the debug probe to the given slot.
func SelectJTAG(slotID uint8) {
	JTAGPins := viper.GetIntSlice("jtagio")
	selectPin(JTAGPins, slotID)
}

// SelectReset pulses the reset line of the given slot.
func SelectReset(slotID uint8) {
	ResetPins := viper.GetIntSlice("resetio")
	selectPin(ResetPins, slotID)
	selectPin(ResetPins, 0) // release pressed reset
}

func selectPin(pins []int, slotID uint8) {
	for _, pin := range pins {
		rpio.Pin(pin).Output()
	}

	for i, level := range levels(len(pins), slotID) {
		if level == 1 {
			rpio.Pin(pins[i]).High()
		} else {
			rpio.Pin(pins[i]).Low()
		}
	}
}

// levels spells the slot id out in binary across n mux lines, most
// significant line first.
func levels(n int, slotID uint8) []uint8 {
	out := make([]uint8, n)
	for i := 0; i < n; i++ {
		out[i] = (slotID >> uint(n-1-i)) & 1
	}
	return out
}
