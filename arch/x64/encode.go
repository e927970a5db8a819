package x64

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"codehook"
)

// HeaderSize reserves 8 bytes ahead of the trampoline's code entry for
// the absolute-address slot the patch site's `ff 25` instruction reads
// through (§4.6).
func (Backend) HeaderSize(uintptr) int { return 8 }

// EmitReplacement is never called for x86-64: the inspector never emits
// a relocation descriptor, since any PC-relative instruction is rejected
// outright rather than relocated (§4.1).
func (Backend) EmitReplacement([]byte, uint64, codehook.Relocation) (int, error) {
	return 0, errors.New("x64: no relocation kinds are ever produced for this architecture")
}

// EmitJumpBack writes a 5-byte `jmp rel32` from dstAddr to
// entry+codeLenToReplace.
func (Backend) EmitJumpBack(dst []byte, dstAddr uint64, codePoint uintptr, codeLenToReplace int) (int, error) {
	target := uint64(codePoint) + uint64(codeLenToReplace)
	rel := int64(target) - int64(dstAddr+5)
	if rel < int64(minInt32) || rel > int64(maxInt32) {
		return 0, errors.Errorf("x64: jump-back displacement %d does not fit in rel32", rel)
	}
	dst[0] = 0xe9
	binary.LittleEndian.PutUint32(dst[1:5], uint32(int32(rel)))
	return 5, nil
}

const (
	minInt32 = -(1 << 31)
	maxInt32 = (1 << 31) - 1
)

// Reachable reports whether a signed 32-bit displacement from the patch
// site (codePoint+6, the end of the `ff 25` instruction) to the
// trampoline's address slot fits the rip-relative form the patcher uses.
func (Backend) Reachable(siteAddr, trampolineAddr uintptr) bool {
	rel := int64(trampolineAddr) - int64(siteAddr+6)
	return rel >= int64(minInt32) && rel <= int64(maxInt32)
}

// PatchSite encodes the 6-byte `ff 25 <rel32>` overwrite at codePoint.
// trampolineEntry is the address of the builder's 8-byte address slot
// (HeaderSize reserves it immediately ahead of the trampoline's code),
// which holds the trampoline's real entry address; rel32 targets that
// slot.
func (Backend) PatchSite(codePoint, trampolineEntry uintptr) (codehook.PatchRecord, error) {
	rel := int64(trampolineEntry) - int64(codePoint+6)
	if rel < int64(minInt32) || rel > int64(maxInt32) {
		return codehook.PatchRecord{}, errors.Errorf("x64: patch-site displacement %d does not fit in rel32", rel)
	}
	b := make([]byte, 6)
	b[0], b[1] = 0xff, 0x25
	binary.LittleEndian.PutUint32(b[2:6], uint32(int32(rel)))
	return codehook.PatchRecord{Addr: codePoint, Bytes: b}, nil
}
