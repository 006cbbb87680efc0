package l6474

import "periph.io/x/conn/v3/physic"

// Register addresses
const (
	regAbsPos   = 0x01 // 22 bits, two's complement
	regElPos    = 0x02
	regMark     = 0x03
	regTVal     = 0x09 // 7 bits, 31.25 mA per LSB
	regTFast    = 0x0E // TOFF_FAST[7:4], FAST_STEP[3:0], 2 us per LSB
	regTOnMin   = 0x0F // 7 bits, 0.5 us per LSB
	regTOffMin  = 0x10 // 7 bits, 0.5 us per LSB
	regAdcOut   = 0x12
	regOcdTh    = 0x13 // 4 bits, 375 mA per LSB
	regStepMode = 0x16
	regAlarmEn  = 0x17
	regConfig   = 0x18 // 16 bits
	regStatus   = 0x19 // 16 bits
)

// Commands
const (
	cmdNop       = 0x00
	cmdSetParam  = 0x00 // | register
	cmdGetParam  = 0x20 // | register
	cmdEnable    = 0xB8
	cmdDisable   = 0xA8
	cmdGetStatus = 0xD0
)

// STATUS register bits. UVLO, TH_WRN, TH_SD and OCD are active low.
const (
	statusHiZ        = 1 << 0
	statusDir        = 1 << 4
	statusNotPerfCmd = 1 << 7
	statusWrongCmd   = 1 << 8
	statusUVLO       = 1 << 9
	statusThWrn      = 1 << 10
	statusThSD       = 1 << 11
	statusOCD        = 1 << 12
)

const (
	stepModeFixed = 0x08 // Bit 3 of STEP_MODE must be written as 1
	stepSelMask   = 0x07

	absPosBits = 22
	absPosMask = 1<<absPosBits - 1
	absPosMax  = 1<<(absPosBits-1) - 1
	absPosMin  = -(1 << (absPosBits - 1))
)

const (
	tvalStep  = 31250 * physic.MicroAmpere
	tvalMax   = 0x7F
	ocdStep   = 375 * physic.MilliAmpere
	ocdMax    = 0x0F
	tonStepNs = 500
	tonMax    = 0x7F
	fastStep  = 2000 // ns per FAST_STEP LSB
	fastMax   = 0x0F
)

// paramLen returns the number of data bytes of a register.
func paramLen(reg byte) int {
	switch reg {
	case regAbsPos, regMark:
		return 3
	case regElPos, regConfig, regStatus:
		return 2
	default:
		return 1
	}
}

// encodeAbsPos packs a signed position into the 22-bit register.
func encodeAbsPos(pos int32) (uint32, bool) {
	if pos > absPosMax || pos < absPosMin {
		return 0, false
	}
	return uint32(pos) & absPosMask, true
}

// decodeAbsPos sign-extends the 22-bit register.
func decodeAbsPos(v uint32) int32 {
	v &= absPosMask
	if v&(1<<(absPosBits-1)) != 0 {
		return int32(v) - 1<<absPosBits
	}
	return int32(v)
}

// encodeCurrent rounds a current to the nearest register step, where
// register value n means (n+1) steps.
func encodeCurrent(c, step physic.ElectricCurrent, max uint32) uint32 {
	n := int64((c + step/2) / step)
	if n < 1 {
		n = 1
	}
	if n > int64(max)+1 {
		n = int64(max) + 1
	}
	return uint32(n - 1)
}

func decodeCurrent(v uint32, step physic.ElectricCurrent) physic.ElectricCurrent {
	return physic.ElectricCurrent(v+1) * step
}

// encodeTime rounds a duration in ns to a register whose value n means
// (n+1) * step ns.
func encodeTime(ns, step int64, max uint32) uint32 {
	n := (ns + step/2) / step
	if n < 1 {
		n = 1
	}
	if n > int64(max)+1 {
		n = int64(max) + 1
	}
	return uint32(n - 1)
}

func decodeTime(v uint32, step int64) int64 {
	return int64(v+1) * step
}

// stepSel maps a microstep resolution to STEP_SEL.
func stepSel(resolution int) (byte, bool) {
	switch resolution {
	case 1:
		return 0, true
	case 2:
		return 1, true
	case 4:
		return 2, true
	case 8:
		return 3, true
	case 16:
		return 4, true
	}
	return 0, false
}
