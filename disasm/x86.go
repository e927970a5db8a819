package disasm

import (
	"golang.org/x/arch/x86/x86asm"

	"codehook"
)

// x86Adapter is the default codehook.Adapter for x86-64, built on
// golang.org/x/arch/x86/x86asm. Grounded on
// _examples/other_examples/61fd083c_maxgio92-prologo__convergence_test.go.go,
// which decodes x86-64 function prologues with the same package for the
// same purpose (locating and classifying function entry code).
type x86Adapter struct {
	mem MemReader
}

// MemReader reads n bytes of target memory starting at addr. The default
// adapters never read past what they are given; tests supply a
// byte-slice-backed MemReader for a simulated address space.
type MemReader func(addr uint64, n int) []byte

// NewX86Adapter returns a codehook.Adapter that decodes x86-64 instructions
// via golang.org/x/arch/x86/x86asm, reading target bytes through mem.
func NewX86Adapter(mem MemReader) codehook.Adapter {
	return &x86Adapter{mem: mem}
}

func (a *x86Adapter) ReadBytes(addr uint64, n int) []byte {
	return a.mem(addr, n)
}

func (a *x86Adapter) Decode(addr uint64, onInstr codehook.InstrCallback, onAddr codehook.AddrCallback) (int, error) {
	// x86-64 instructions are at most 15 bytes.
	buf := a.mem(addr, 15)
	if len(buf) == 0 {
		return 0, errNoBytes
	}

	inst, err := x86asm.Decode(buf, 64)
	if err != nil {
		return 0, err
	}

	text := x86asm.GNUSyntax(inst, addr, nil)
	onInstr(text, 0, inst.Len)

	for _, arg := range inst.Args {
		if arg == nil {
			break
		}
		if rel, ok := arg.(x86asm.Rel); ok {
			target := addr + uint64(inst.Len) + uint64(int64(rel))
			onAddr(target)
		}
	}

	return inst.Len, nil
}
