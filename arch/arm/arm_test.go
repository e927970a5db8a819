package arm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"codehook"
	"codehook/disasm"
)

func TestMinOverwriteLenByModeAndAlignment(t *testing.T) {
	var b Backend
	require.Equal(t, 8, b.MinOverwriteLen(0x2000))    // ARM
	require.Equal(t, 8, b.MinOverwriteLen(0x1001))    // Thumb, aligned underlying 0x1000
	require.Equal(t, 10, b.MinOverwriteLen(0x1003))   // Thumb, unaligned underlying 0x1002
}

// Grounded on the worked "push {r4,lr}; mov r4,r0; bl foo; pop {r4,pc}"
// scenario, but the inspector halts as soon as the accumulated length
// reaches the architecture minimum (8 bytes for ARM), so the `bl` that
// carries the relocation must itself be what crosses that threshold —
// here a single leading push leaves room for the bl to still be within
// budget, exercising the BranchLink descriptor the same way the worked
// example does without relying on its (inconsistent) final byte count.
func TestInspectARMBranchLink(t *testing.T) {
	bytes := make([]byte, 16)
	fake := disasm.NewFake(0x2000, bytes)
	fake.At(0x2000, disasm.FakeInstr{Text: "push {r4, lr}", Size: 4})
	fake.At(0x2004, disasm.FakeInstr{Text: "bl #0x2108", Size: 4, Addr: 0x2108})

	var b Backend
	result, err := b.Inspect(fake, 0x2000)
	require.NoError(t, err)
	require.Equal(t, "Ok", result.Status.String())
	require.Equal(t, 8, result.CodeLenToReplace)
	require.Len(t, result.Relocations, 1)
	bl, ok := result.Relocations[0].(codehook.BranchLink)
	require.True(t, ok)
	require.False(t, bl.IsBLX)
	require.Equal(t, uint64(0x2108), bl.Addr())
	require.Equal(t, 16, result.LoweredOriginalCodeLen)
}

// scenario 3: Thumb function at 0x1001 (aligned underlying 0x1000). The
// third instruction (bl.w) is itself what crosses the aligned-Thumb
// minimum of 8 bytes, so the inspector halts there without ever
// decoding the trailing pop.
func TestInspectThumbAlignedEntry(t *testing.T) {
	bytes := make([]byte, 16)
	fake := disasm.NewFake(0x1000, bytes)
	fake.At(0x1000, disasm.FakeInstr{Text: "push {r7, lr}", Size: 2})
	fake.At(0x1002, disasm.FakeInstr{Text: "add r7, sp, #0", Size: 2})
	fake.At(0x1004, disasm.FakeInstr{Text: "bl.w #0x1100", Size: 4, Addr: 0x1100})
	fake.At(0x1008, disasm.FakeInstr{Text: "pop {r7, pc}", Size: 2})

	var b Backend
	result, err := b.Inspect(fake, 0x1001)
	require.NoError(t, err)
	require.Equal(t, "Ok", result.Status.String())
	require.Equal(t, 8, result.CodeLenToReplace)
	require.Len(t, result.Relocations, 1)
}

// scenario 4: Thumb function at unaligned 0x1003 (underlying 0x1002).
func TestPatchSiteUnalignedThumb(t *testing.T) {
	var b Backend
	rec, err := b.PatchSite(0x1003, 0x5000)
	require.NoError(t, err)
	require.Len(t, rec.Bytes, 10)
}

func TestPatchSiteAlignedThumb(t *testing.T) {
	var b Backend
	rec, err := b.PatchSite(0x1001, 0x5000)
	require.NoError(t, err)
	require.Len(t, rec.Bytes, 8)
	require.Equal(t, byte(0xdf), rec.Bytes[0])
	require.Equal(t, byte(0xf8), rec.Bytes[1])
}

func TestPatchSiteARM(t *testing.T) {
	var b Backend
	rec, err := b.PatchSite(0x2000, 0x5000)
	require.NoError(t, err)
	require.Len(t, rec.Bytes, 8)
	require.Equal(t, byte(0x04), rec.Bytes[0])
	require.Equal(t, byte(0xf0), rec.Bytes[1])
	require.Equal(t, byte(0x1f), rec.Bytes[2])
	require.Equal(t, byte(0xe5), rec.Bytes[3])
}

// A branch whose target equals entry+L is accepted; entry+L-1 is
// rejected as a short branch (BackEdge).
func TestShortBranchBoundary(t *testing.T) {
	var b Backend

	bytesOk := make([]byte, 16)
	fakeOk := disasm.NewFake(0x3000, bytesOk)
	fakeOk.At(0x3000, disasm.FakeInstr{Text: "push {r4, lr}", Size: 4})
	fakeOk.At(0x3004, disasm.FakeInstr{Text: "beq #0x3008", Size: 4, Addr: 0x3008})
	resultOk, err := b.Inspect(fakeOk, 0x3000)
	require.NoError(t, err)
	require.Equal(t, "Ok", resultOk.Status.String())

	bytesBad := make([]byte, 16)
	fakeBad := disasm.NewFake(0x4000, bytesBad)
	fakeBad.At(0x4000, disasm.FakeInstr{Text: "push {r4, lr}", Size: 4})
	fakeBad.At(0x4004, disasm.FakeInstr{Text: "beq #0x4007", Size: 4, Addr: 0x4007})
	resultBad, err := b.Inspect(fakeBad, 0x4000)
	require.NoError(t, err)
	require.Equal(t, "BackEdge", resultBad.Status.String())
}

// cbz targeting inside the overwritten region is rejected.
func TestCBZWithinRegionRejected(t *testing.T) {
	bytes := make([]byte, 16)
	fake := disasm.NewFake(0x1000, bytes)
	fake.At(0x1000, disasm.FakeInstr{Text: "push {r7, lr}", Size: 2})
	fake.At(0x1002, disasm.FakeInstr{Text: "cbz r2, #0x1004", Size: 2, Addr: 0x1004})

	var b Backend
	result, err := b.Inspect(fake, 0x1001)
	require.NoError(t, err)
	require.Equal(t, "BackEdge", result.Status.String())
}

// AddPc (register form `add Rn, pc, Rm`) is rejected rather than
// producing a wrong address, per the documented fix to the latent bug.
func TestAddPcRegisterFormRejected(t *testing.T) {
	bytes := make([]byte, 16)
	fake := disasm.NewFake(0x2000, bytes)
	fake.At(0x2000, disasm.FakeInstr{Text: "add r3, pc, r1", Size: 4})

	var b Backend
	result, err := b.Inspect(fake, 0x2000)
	require.NoError(t, err)
	require.Equal(t, "NotAccepted", result.Status.String())
}

// scenario 5: ldr r3, [pc, #8] emits an LdrPc descriptor with the
// disassembler-computed absolute address.
func TestLdrPcDescriptor(t *testing.T) {
	bytes := make([]byte, 16)
	fake := disasm.NewFake(0x2000, bytes)
	fake.At(0x2000, disasm.FakeInstr{Text: "ldr r3, [pc, #8]", Size: 4, Addr: 0x2010})
	fake.At(0x2004, disasm.FakeInstr{Text: "mov r0, r1", Size: 4})

	var b Backend
	result, err := b.Inspect(fake, 0x2000)
	require.NoError(t, err)
	require.Equal(t, "Ok", result.Status.String())
	require.Len(t, result.Relocations, 1)
	ldr, ok := result.Relocations[0].(codehook.LoadPC)
	require.True(t, ok)
	require.EqualValues(t, 3, ldr.Reg)
}

// MovAddr round-trip: movw/movt loading A into Rn round-trips for
// representative values across the 32-bit range.
func TestMovAddrRoundTrip(t *testing.T) {
	for _, a := range []uint32{0, 1, 0xFFFF, 0x10000, 0x12345678, 0xFFFFFFFF} {
		lo := uint16(a & 0xFFFF)
		hi := uint16(a >> 16)
		h1, h2 := movwThumb(5, lo)
		gotLo := decodeMovwMovt(h1, h2)
		h3, h4 := movtThumb(5, hi)
		gotHi := decodeMovwMovt(h3, h4)
		require.Equal(t, lo, gotLo)
		require.Equal(t, hi, gotHi)
	}
}

// decodeMovwMovt reverses movwThumb/movtThumb's bitfield packing, for
// the MovAddr round-trip test.
func decodeMovwMovt(h1, h2 uint16) uint16 {
	imm4 := h1 & 0xF
	i := (h1 >> 10) & 0x1
	imm3 := (h2 >> 12) & 0x7
	imm8 := h2 & 0xFF
	return (imm4 << 12) | (i << 11) | (imm3 << 8) | imm8
}

// Round-trip the Thumb patch-site encoder: encoding then decoding the
// two 16-bit words reproduces the expected ldr.w pc,[pc,#k] form with the
// literal equal to the target with bit 0 set.
func TestThumbPatchSiteRoundTrip(t *testing.T) {
	var b Backend

	rec, err := b.PatchSite(0x1001, 0x9000)
	require.NoError(t, err)
	h1 := uint16(rec.Bytes[0]) | uint16(rec.Bytes[1])<<8
	h2 := uint16(rec.Bytes[2]) | uint16(rec.Bytes[3])<<8
	require.Equal(t, uint16(0xf8df), h1)
	require.Equal(t, uint16(0xf000), h2&0xf000)
	imm := h2 & 0x0fff
	require.Equal(t, uint16(0), imm)
	lit := uint32(rec.Bytes[4]) | uint32(rec.Bytes[5])<<8 | uint32(rec.Bytes[6])<<16 | uint32(rec.Bytes[7])<<24
	require.Equal(t, uint32(0x9000)|1, lit)
}

// An ARM-source blx to a Thumb destination must flip the destination
// mode bit: bl never interworks, blx always does, so the emitted literal
// carries Thumb()!=IsBLX as its low bit regardless of the source mode.
func TestEmitBranchLinkARMBlxFlipsDestMode(t *testing.T) {
	v := codehook.NewBranchLink(0, 4, 0x6000, 12, false, true)
	dst := make([]byte, 16)
	n, err := emitBranchLink(dst, v)
	require.NoError(t, err)
	require.Equal(t, 12, n)
	got := decodeMovwMovtAddr(dst)
	require.Equal(t, uint32(0x6001), got)
}

// An ARM-source bl never interworks: the destination stays in ARM mode
// regardless of IsBLX's value on this path (bl is always IsBLX=false).
func TestEmitBranchLinkARMBlStaysARM(t *testing.T) {
	v := codehook.NewBranchLink(0, 4, 0x6000, 12, false, false)
	dst := make([]byte, 16)
	_, err := emitBranchLink(dst, v)
	require.NoError(t, err)
	got := decodeMovwMovtAddr(dst)
	require.Equal(t, uint32(0x6000), got)
}

// A Thumb-source blx to an ARM destination clears the mode bit.
func TestEmitBranchLinkThumbBlxToARM(t *testing.T) {
	v := codehook.NewBranchLink(0, 4, 0x6001, 12, true, true)
	dst := make([]byte, 16)
	_, err := emitBranchLink(dst, v)
	require.NoError(t, err)
	got := decodeMovwMovtThumbAddr(dst)
	require.Equal(t, uint32(0x6000), got)
}

// decodeMovwMovtAddr reverses the ARM movw/movt pair written at dst[0:8]
// back into the 32-bit immediate they load.
func decodeMovwMovtAddr(dst []byte) uint32 {
	movw := uint32(dst[0]) | uint32(dst[1])<<8 | uint32(dst[2])<<16 | uint32(dst[3])<<24
	movt := uint32(dst[4]) | uint32(dst[5])<<8 | uint32(dst[6])<<16 | uint32(dst[7])<<24
	lo := ((movw >> 16) & 0xF) << 12
	lo |= movw & 0xFFF
	hi := ((movt >> 16) & 0xF) << 12
	hi |= movt & 0xFFF
	return (hi << 16) | lo
}

// decodeMovwMovtThumbAddr reverses the Thumb movw/movt pair written at
// dst[0:8] back into the 32-bit immediate they load.
func decodeMovwMovtThumbAddr(dst []byte) uint32 {
	h1 := uint16(dst[0]) | uint16(dst[1])<<8
	h2 := uint16(dst[2]) | uint16(dst[3])<<8
	h3 := uint16(dst[4]) | uint16(dst[5])<<8
	h4 := uint16(dst[6]) | uint16(dst[7])<<8
	lo := decodeMovwMovt(h1, h2)
	hi := decodeMovwMovt(h3, h4)
	return (uint32(hi) << 16) | uint32(lo)
}

// An unconditional Thumb branch relocation must synthesize a Thumb
// destination (the relocated instruction never changes ISA mode), so the
// literal's low bit must be set even though the raw target address
// (v.Addr()) carries no mode information of its own.
func TestEmitBranchThumbUnconditionalDestIsThumb(t *testing.T) {
	v := codehook.NewBranch(0, 2, 0x7000, 16, true, codehook.Unconditional)
	dst := make([]byte, 14)
	_, err := emitBranch(dst, 0x1000, v)
	require.NoError(t, err)
	lit := literalAt(dst, 4)
	require.Equal(t, uint32(0x7000)|1, lit)
}

// A conditional Thumb branch relocation's literal must likewise carry a
// Thumb destination.
func TestEmitThumbCondBranchDestIsThumb(t *testing.T) {
	dst := make([]byte, 14)
	_, err := emitThumbCondBranch(dst, 0x1000, 0, 0x7004)
	require.NoError(t, err)
	lit := literalAt(dst, 8)
	require.Equal(t, uint32(0x7004)|1, lit)
}

// A Thumb cbz/cbnz relocation's literal must likewise carry a Thumb
// destination.
func TestEmitCompareBranchDestIsThumb(t *testing.T) {
	v := codehook.NewCompareBranch(0, 2, 0x7008, 12, true, 2, true)
	dst := make([]byte, 12)
	_, err := emitCompareBranch(dst, 0x1000, v)
	require.NoError(t, err)
	// leadBytes=2 at dstAddr=0x1000 needs the alignment-bridging nop
	// (0x1002+4 isn't 4-byte aligned), pushing the literal to offset 8.
	lit := literalAt(dst, 8)
	require.Equal(t, uint32(0x7008)|1, lit)
}

// literalAt reads the 4-byte little-endian literal at off.
func literalAt(dst []byte, off int) uint32 {
	return uint32(dst[off]) | uint32(dst[off+1])<<8 | uint32(dst[off+2])<<16 | uint32(dst[off+3])<<24
}

// Idempotence: running the inspector twice on the same bytes yields
// identical results.
func TestInspectIdempotent(t *testing.T) {
	bytes := make([]byte, 16)
	fake := disasm.NewFake(0x2000, bytes)
	fake.At(0x2000, disasm.FakeInstr{Text: "push {r4, lr}", Size: 4})
	fake.At(0x2004, disasm.FakeInstr{Text: "mov r4, r0", Size: 4})
	fake.At(0x2008, disasm.FakeInstr{Text: "bl #0x2108", Size: 4, Addr: 0x2108})

	var b Backend
	r1, err := b.Inspect(fake, 0x2000)
	require.NoError(t, err)
	r2, err := b.Inspect(fake, 0x2000)
	require.NoError(t, err)
	require.Equal(t, r1.Status, r2.Status)
	require.Equal(t, r1.CodeLenToReplace, r2.CodeLenToReplace)
	require.Equal(t, r1.LoweredOriginalCodeLen, r2.LoweredOriginalCodeLen)
	require.Equal(t, len(r1.Relocations), len(r2.Relocations))
}
