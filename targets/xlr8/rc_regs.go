//go:build avr

package main

import (
	"runtime/volatile"
	"unsafe"

	"xlr8rc/core"
)

// XLR8 RC XB register block in AVR data space
var (
	rcCR  = (*volatile.Register8)(unsafe.Pointer(uintptr(core.RCRegisterBase) + uintptr(core.RCCR)))
	rcPWH = (*volatile.Register8)(unsafe.Pointer(uintptr(core.RCRegisterBase) + uintptr(core.RCPWH)))
	rcPWL = (*volatile.Register8)(unsafe.Pointer(uintptr(core.RCRegisterBase) + uintptr(core.RCPWL)))
)

// XLR8Registers is the hardware RC register file
type XLR8Registers struct{}

func (XLR8Registers) register(reg core.RCRegister) *volatile.Register8 {
	switch reg {
	case core.RCPWH:
		return rcPWH
	case core.RCPWL:
		return rcPWL
	default:
		return rcCR
	}
}

// ReadRegister implements core.RCRegisterFile
func (r XLR8Registers) ReadRegister(reg core.RCRegister) uint8 {
	return r.register(reg).Get()
}

// WriteRegister implements core.RCRegisterFile
func (r XLR8Registers) WriteRegister(reg core.RCRegister, value uint8) {
	r.register(reg).Set(value)
}
