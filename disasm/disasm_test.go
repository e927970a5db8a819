package disasm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func byteMem(b []byte) MemReader {
	return func(addr uint64, n int) []byte {
		if addr > uint64(len(b)) {
			return nil
		}
		end := addr + uint64(n)
		if end > uint64(len(b)) {
			end = uint64(len(b))
		}
		return b[addr:end]
	}
}

// `ret` (0xc3) is a single byte with no operands and no PC-relative
// target, the simplest possible round trip through NewX86Adapter.
func TestX86AdapterDecodesRet(t *testing.T) {
	mem := byteMem([]byte{0xc3})
	a := NewX86Adapter(mem)

	var text string
	var addrSeen bool
	size, err := a.Decode(0, func(t string, _, _ int) { text = t }, func(uint64) { addrSeen = true })
	require.NoError(t, err)
	require.Equal(t, 1, size)
	require.True(t, strings.Contains(strings.ToLower(text), "ret"))
	require.False(t, addrSeen)
}

// `call rel32` (0xe8) at address 0x1000 targeting 0x1010 exercises the
// PC-relative callback: target = addr + instrLen + rel32.
func TestX86AdapterComputesCallTarget(t *testing.T) {
	code := []byte{0xe8, 0x0b, 0x00, 0x00, 0x00} // call +11 -> 0x1000+5+11=0x1010
	atZero := byteMem(code)
	mem := MemReader(func(addr uint64, n int) []byte { return atZero(addr-0x1000, n) })
	a := NewX86Adapter(mem)

	var target uint64
	size, err := a.Decode(0x1000, func(string, int, int) {}, func(t uint64) { target = t })
	require.NoError(t, err)
	require.Equal(t, 5, size)
	require.Equal(t, uint64(0x1010), target)
}

func TestX86AdapterReadBytes(t *testing.T) {
	mem := byteMem([]byte{1, 2, 3, 4, 5})
	a := NewX86Adapter(mem)
	require.Equal(t, []byte{1, 2, 3, 4}, a.ReadBytes(0, 4))
}

// push {r4, lr} (A32 0xe92d4010) is a single 4-byte instruction with no
// PC-relative operand.
func TestARMAdapterDecodesPush(t *testing.T) {
	code := []byte{0x10, 0x40, 0x2d, 0xe9}
	mem := byteMem(code)
	a := NewARMAdapter(mem, false)

	var text string
	var addrSeen bool
	size, err := a.Decode(0, func(t string, _, _ int) { text = t }, func(uint64) { addrSeen = true })
	require.NoError(t, err)
	require.Equal(t, 4, size)
	require.True(t, strings.Contains(strings.ToUpper(text), "PUSH"))
	require.False(t, addrSeen)
}

func TestARMAdapterThumbMode(t *testing.T) {
	code := []byte{0x10, 0xb5} // push {r4, lr}, T1
	mem := byteMem(code)
	a := NewARMAdapter(mem, true)

	size, err := a.Decode(0, func(string, int, int) {}, func(uint64) {})
	require.NoError(t, err)
	require.Equal(t, 2, size)
}

func TestFakeScriptsTextSizeAndAddr(t *testing.T) {
	f := NewFake(0x2000, make([]byte, 16))
	f.At(0x2000, FakeInstr{Text: "bl #0x2100", Size: 4, Addr: 0x2100})

	var text string
	var target uint64
	size, err := f.Decode(0x2000, func(t string, _, _ int) { text = t }, func(a uint64) { target = a })
	require.NoError(t, err)
	require.Equal(t, 4, size)
	require.Equal(t, "bl #0x2100", text)
	require.Equal(t, uint64(0x2100), target)
}

func TestFakeDecodeUnscriptedAddrErrors(t *testing.T) {
	f := NewFake(0x2000, make([]byte, 16))
	_, err := f.Decode(0x3000, func(string, int, int) {}, func(uint64) {})
	require.Error(t, err)
}
