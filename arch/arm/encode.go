package arm

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"codehook"
)

const ipReg = 12

type kind int

const (
	kindBL kind = iota
	kindB
	kindCB
	kindAddPc
	kindLdrPc
	kindMovAddr
)

// replacementSize is the fixed byte length of the replacement sequence
// for each relocation kind, per the table in §4.5.
func replacementSize(k kind, thumb bool) int {
	if thumb {
		switch k {
		case kindBL:
			return 10
		case kindB:
			return 14
		case kindCB:
			return 12
		case kindAddPc:
			return 14
		case kindLdrPc:
			return 10
		case kindMovAddr:
			return 8
		}
	}
	switch k {
	case kindBL:
		return 12
	case kindB:
		return 16
	case kindAddPc:
		return 20
	case kindLdrPc:
		return 12
	case kindMovAddr:
		return 8
	}
	return 0
}

func movwThumb(rd uint8, imm16 uint16) (uint16, uint16) {
	imm4 := uint16(imm16>>12) & 0xF
	i := uint16(imm16>>11) & 0x1
	imm3 := uint16(imm16>>8) & 0x7
	imm8 := imm16 & 0xFF
	h1 := 0xF240 | (i << 10) | imm4
	h2 := (imm3 << 12) | (uint16(rd) << 8) | imm8
	return h1, h2
}

func movtThumb(rd uint8, imm16 uint16) (uint16, uint16) {
	imm4 := uint16(imm16>>12) & 0xF
	i := uint16(imm16>>11) & 0x1
	imm3 := uint16(imm16>>8) & 0x7
	imm8 := imm16 & 0xFF
	h1 := 0xF2C0 | (i << 10) | imm4
	h2 := (imm3 << 12) | (uint16(rd) << 8) | imm8
	return h1, h2
}

func movwARM(rd uint8, imm16 uint32) uint32 {
	imm4 := (imm16 >> 12) & 0xF
	imm12 := imm16 & 0xFFF
	return (0xE << 28) | (0x30 << 20) | (imm4 << 16) | (uint32(rd) << 12) | imm12
}

func movtARM(rd uint8, imm16 uint32) uint32 {
	imm4 := (imm16 >> 12) & 0xF
	imm12 := imm16 & 0xFFF
	return (0xE << 28) | (0x34 << 20) | (imm4 << 16) | (uint32(rd) << 12) | imm12
}

func blxRegThumb(rm uint8) uint16 { return 0x4780 | (uint16(rm) << 3) }

func blxRegARM(rm uint8) uint32 { return (0xE << 28) | (0x12FFF3 << 4) | uint32(rm) }

func ldrwPcThumb(imm uint16) (uint16, uint16) { return 0xF8DF, 0xF000 | imm }

func thumbNop() uint16 { return 0xBF00 }

func armNop() uint32 { return 0xE320F000 }

func thumbBcond(cond uint8, imm8 int8) uint16 {
	return 0xD000 | (uint16(cond) << 8) | uint16(uint8(imm8))
}

func thumbBuncond(imm11 int16) uint16 {
	return 0xE000 | (uint16(imm11) & 0x7FF)
}

func thumbCBZ(notZero bool, reg uint8, imm32 uint8) uint16 {
	op := uint16(0)
	if notZero {
		op = 1
	}
	i := uint16((imm32 >> 6) & 1)
	imm5 := uint16((imm32 >> 1) & 0x1F)
	return 0xB100 | (op << 11) | (i << 9) | (imm5 << 3) | uint16(reg)
}

// armBranch encodes a conditional or unconditional ARM branch at
// instrAddr targeting target.
func armBranch(cond uint8, instrAddr, target uint64) uint32 {
	disp := int64(target) - int64(instrAddr+8)
	imm24 := disp >> 2
	return (uint32(cond) << 28) | (0xA << 24) | (uint32(imm24) & 0xFFFFFF)
}

func putU16(dst []byte, off int, v uint16) { binary.LittleEndian.PutUint16(dst[off:], v) }
func putU32(dst []byte, off int, v uint32) { binary.LittleEndian.PutUint32(dst[off:], v) }

// emitAbsAddr writes the absolute target address into dst at off, with
// bit 0 set or cleared per the mode the destination must resume in.
func emitAbsAddr(dst []byte, off int, addr uint64, thumbDest bool) {
	v := uint32(addr) &^ 1
	if thumbDest {
		v |= 1
	}
	putU32(dst, off, v)
}

// thumbLiteralLayout computes where the 4-byte literal lands after a
// leadBytes-long lead-in, inserting a 2-byte alignment nop when the
// instruction immediately preceding the literal load is not itself
// 4-byte aligned. Returns the literal's byte offset within the sequence,
// whether a bridging nop was used, and the #imm value the `ldr.w pc`
// must carry.
func thumbLiteralLayout(dstAddr uint64, leadBytes int) (literalOff int, bridged bool, imm uint16) {
	ldrAbs := dstAddr + uint64(leadBytes)
	if (ldrAbs+4)%4 == 0 {
		return leadBytes + 4, false, 0
	}
	return leadBytes + 4 + 2, true, 4
}

// EmitReplacement dispatches on the relocation's concrete kind and writes
// the appropriate rewritten instruction sequence per §4.5.
func (Backend) EmitReplacement(dst []byte, dstAddr uint64, r codehook.Relocation) (int, error) {
	switch v := r.(type) {
	case codehook.BranchLink:
		return emitBranchLink(dst, v)
	case codehook.Branch:
		return emitBranch(dst, dstAddr, v)
	case codehook.CompareBranch:
		return emitCompareBranch(dst, dstAddr, v)
	case codehook.LoadPC:
		return emitLoadPC(dst, v)
	case codehook.MovAddr:
		return emitMovAddr(dst, v)
	case codehook.AddPC:
		return 0, errors.New("arm: AddPc relocation is rejected at inspection time and never reaches the builder")
	default:
		return 0, errors.Errorf("arm: unhandled relocation kind %T", r)
	}
}

// emitBranchLink writes movw ip,#lo; movt ip,#hi; blx ip. A single BLX
// covers both the `bl` and `blx` source forms: `bl` never interworks (the
// destination stays in the caller's mode), while `blx` always interworks
// (the destination mode flips). So the destination mode bit is the
// caller's mode XOR'd with IsBLX.
func emitBranchLink(dst []byte, v codehook.BranchLink) (int, error) {
	addr := v.Addr()
	addr = withModeBit(addr, v.Thumb() != v.IsBLX)
	n := emitMovwMovt(dst, ipReg, uint32(addr), v.Thumb())
	if v.Thumb() {
		putU16(dst[n:], 0, blxRegThumb(ipReg))
		n += 2
	} else {
		putU32(dst[n:], 0, blxRegARM(ipReg))
		n += 4
	}
	return n, nil
}

func withModeBit(addr uint64, thumb bool) uint64 {
	if thumb {
		return addr | 1
	}
	return addr &^ 1
}

// emitMovwMovt writes the movw/movt pair loading imm32 into reg, Thumb or
// ARM form, returning the bytes written.
func emitMovwMovt(dst []byte, reg uint8, imm32 uint32, thumb bool) int {
	lo := uint16(imm32 & 0xFFFF)
	hi := uint16(imm32 >> 16)
	if thumb {
		h1, h2 := movwThumb(reg, lo)
		putU16(dst[0:], 0, h1)
		putU16(dst[2:], 0, h2)
		h3, h4 := movtThumb(reg, hi)
		putU16(dst[4:], 0, h3)
		putU16(dst[6:], 0, h4)
		return 8
	}
	putU32(dst[0:], 0, movwARM(reg, uint32(lo)))
	putU32(dst[4:], 0, movtARM(reg, uint32(hi)))
	return 8
}

// emitBranch writes the relocated B(cond) sequence: unconditional targets
// load the address directly; conditional ones use a bridging
// bcond/b pair so the untaken path skips the pc-load entirely.
func emitBranch(dst []byte, dstAddr uint64, v codehook.Branch) (int, error) {
	if v.Thumb() {
		if v.Cond == codehook.Unconditional {
			return emitThumbLdrPcLiteral(dst, dstAddr, 0, v.Addr(), true, 14)
		}
		return emitThumbCondBranch(dst, dstAddr, v.Cond, v.Addr())
	}
	if v.Cond == codehook.Unconditional {
		putU32(dst[0:], 0, 0xe51ff004)
		emitAbsAddr(dst, 4, v.Addr(), false)
		putU32(dst[8:], 0, armNop())
		putU32(dst[12:], 0, armNop())
		return 16, nil
	}
	instrAddr := dstAddr
	putU32(dst[0:], 0, armBranch(v.Cond, instrAddr, dstAddr+8))
	putU32(dst[4:], 0, armBranch(codehook.Unconditional, instrAddr+4, dstAddr+16))
	putU32(dst[8:], 0, 0xe51ff004)
	emitAbsAddr(dst, 12, v.Addr(), false)
	return 16, nil
}

// emitThumbLdrPcLiteral writes `ldr.w pc, [pc, #imm]` (optionally bridged
// for alignment) and the literal, padded with nops to total bytes.
func emitThumbLdrPcLiteral(dst []byte, dstAddr uint64, leadBytes int, addr uint64, thumbDest bool, total int) (int, error) {
	literalOff, bridged, imm := thumbLiteralLayout(dstAddr, leadBytes)
	cursor := leadBytes
	h1, h2 := ldrwPcThumb(imm)
	putU16(dst[cursor:], 0, h1)
	putU16(dst[cursor+2:], 0, h2)
	cursor += 4
	if bridged {
		putU16(dst[cursor:], 0, thumbNop())
		cursor += 2
	}
	emitAbsAddr(dst, literalOff, addr, thumbDest)
	cursor = literalOff + 4
	for cursor < total {
		putU16(dst[cursor:], 0, thumbNop())
		cursor += 2
	}
	return total, nil
}

// emitThumbCondBranch writes bcond / b / ldr.w-pc-literal for a
// conditional Thumb branch relocation, per §4.5's B(cond≠14) row.
func emitThumbCondBranch(dst []byte, dstAddr uint64, cond uint8, addr uint64) (int, error) {
	const total = 14
	putU16(dst[0:], 0, thumbBcond(cond, 0))
	putU16(dst[2:], 0, thumbBuncond(4))
	return emitThumbLdrPcLiteral(dst, dstAddr, 4, addr, true, total)
}

// emitCompareBranch writes cbz/cbnz followed by the pc-load literal,
// per §4.5's CB row (Thumb only).
func emitCompareBranch(dst []byte, dstAddr uint64, v codehook.CompareBranch) (int, error) {
	const total = 12
	putU16(dst[0:], 0, thumbCBZ(v.NotZero, v.Reg, 4))
	return emitThumbLdrPcLiteral(dst, dstAddr, 2, v.Addr(), true, total)
}

// emitLoadPC writes movw/movt Rn,#addr; ldr Rn,[Rn], Thumb or ARM form.
func emitLoadPC(dst []byte, v codehook.LoadPC) (int, error) {
	n := emitMovwMovt(dst, v.Reg, uint32(v.Addr()), v.Thumb())
	if v.Thumb() {
		putU16(dst[n:], 0, thumbLdrIndirect(v.Reg))
		n += 2
	} else {
		putU32(dst[n:], 0, armLdrIndirect(v.Reg))
		n += 4
	}
	return n, nil
}

// thumbLdrIndirect encodes `ldr Rn, [Rn]` (16-bit T1, imm5=0).
func thumbLdrIndirect(reg uint8) uint16 {
	return 0x6800 | (uint16(reg) << 3) | uint16(reg)
}

// armLdrIndirect encodes `ldr Rn, [Rn]`.
func armLdrIndirect(reg uint8) uint32 {
	return (0xE << 28) | (0x59 << 20) | (uint32(reg) << 16) | (uint32(reg) << 12)
}

// emitMovAddr writes movw/movt Rn,#addr with no further instruction.
func emitMovAddr(dst []byte, v codehook.MovAddr) (int, error) {
	return emitMovwMovt(dst, v.Reg, uint32(v.Addr()), v.Thumb()), nil
}
