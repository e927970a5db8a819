package arm

import (
	"codehook"
)

// HeaderSize is 0: the ARM/Thumb patch site loads an absolute literal
// directly (§4.6), so no address slot needs to be reserved ahead of the
// trampoline's code entry the way x86-64's rip-relative `ff 25` does.
func (Backend) HeaderSize(uintptr) int { return 0 }

// JumpBackSize is 8 bytes for ARM (`ldr pc,[pc,#-4]` + literal). Thumb
// always reserves 10: the trampoline cursor's alignment at the jump-back
// site is only known at emit time, so the size handed to the allocator
// upfront must cover the worst case (a 2-byte alignment bridge); the
// aligned case pads the same 10 bytes with a trailing nop instead.
func (b Backend) JumpBackSize(codePoint uintptr) int {
	if !codehook.IsThumb(codePoint) {
		return 8
	}
	return 10
}

// EmitJumpBack writes the trailing jump from the trampoline back to
// entry+codeLenToReplace (§4.4 step 5).
func (b Backend) EmitJumpBack(dst []byte, dstAddr uint64, codePoint uintptr, codeLenToReplace int) (int, error) {
	entry := codehook.MaskMode(codePoint)
	target := uint64(entry) + uint64(codeLenToReplace)
	thumb := codehook.IsThumb(codePoint)

	if !thumb {
		putU32(dst[0:], 0, 0xe51ff004)
		emitAbsAddr(dst, 4, target, false)
		return 8, nil
	}

	// ldr.w pc, [pc, #imm] followed by its literal, 4-byte aligned; the
	// alignment bridge (if any) and trailing pad both land inside the
	// fixed 10-byte reservation from JumpBackSize.
	literalOff, bridged, imm := thumbLiteralLayout(dstAddr, 0)
	h1, h2 := ldrwPcThumb(imm)
	putU16(dst[0:], 0, h1)
	putU16(dst[2:], 0, h2)
	cursor := 4
	if bridged {
		putU16(dst[cursor:], 0, thumbNop())
		cursor += 2
	}
	emitAbsAddr(dst, literalOff, target, true)
	cursor = literalOff + 4
	for cursor < 10 {
		putU16(dst[cursor:], 0, thumbNop())
		cursor += 2
	}
	return 10, nil
}

// Reachable is always true on ARM/Thumb: the patch site loads the
// trampoline address as an absolute 32-bit literal, so no displacement
// bound applies (§4.4 step 1).
func (Backend) Reachable(siteAddr, trampolineAddr uintptr) bool { return true }

// PatchSite produces the byte-exact overwrite at codePoint (§4.6):
// 8 bytes for ARM, 8 bytes for aligned Thumb, 10 bytes for unaligned
// Thumb.
func (b Backend) PatchSite(codePoint, trampolineEntry uintptr) (codehook.PatchRecord, error) {
	entry := codehook.MaskMode(codePoint)
	thumb := codehook.IsThumb(codePoint)
	target := uint64(trampolineEntry)

	if !thumb {
		b := make([]byte, 8)
		putU32(b[0:], 0, 0xe51ff004)
		emitAbsAddr(b, 4, target, false)
		return codehook.PatchRecord{Addr: entry, Bytes: b}, nil
	}

	if entry%4 == 0 {
		b := make([]byte, 8)
		putU16(b[0:], 0, 0xf8df)
		putU16(b[2:], 0, 0xf000)
		emitAbsAddr(b, 4, target, true)
		return codehook.PatchRecord{Addr: entry, Bytes: b}, nil
	}

	// Unaligned Thumb: movw ip,#lo; movt ip,#hi; bx ip (10 bytes).
	b := make([]byte, 10)
	n := emitMovwMovt(b, ipReg, uint32(target)|1, true)
	putU16(b[n:], 0, 0x4700|uint16(ipReg)<<3)
	return codehook.PatchRecord{Addr: entry, Bytes: b}, nil
}
