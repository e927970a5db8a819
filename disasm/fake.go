package disasm

import "codehook"

// FakeInstr is one scripted decode result for Fake.
type FakeInstr struct {
	Text string
	Size int
	Addr uint64 // 0 means "no PC-relative target for this instruction"
}

// Fake is a codehook.Adapter driven entirely by a caller-supplied script
// keyed by address, for unit tests that need deterministic decode output
// without a real disassembler. Bytes backs ReadBytes.
type Fake struct {
	Instrs map[uint64]FakeInstr
	Bytes  []byte
	Base   uint64
}

// NewFake returns a Fake adapter reading bytes starting at base.
func NewFake(base uint64, bytes []byte) *Fake {
	return &Fake{Instrs: map[uint64]FakeInstr{}, Bytes: bytes, Base: base}
}

// At scripts the instruction decoded at addr.
func (f *Fake) At(addr uint64, instr FakeInstr) *Fake {
	f.Instrs[addr] = instr
	return f
}

func (f *Fake) ReadBytes(addr uint64, n int) []byte {
	if addr < f.Base || int(addr-f.Base)+n > len(f.Bytes) {
		return nil
	}
	off := addr - f.Base
	return f.Bytes[off : off+uint64(n)]
}

func (f *Fake) Decode(addr uint64, onInstr codehook.InstrCallback, onAddr codehook.AddrCallback) (int, error) {
	instr, ok := f.Instrs[addr]
	if !ok {
		return 0, errNoBytes
	}
	onInstr(instr.Text, 0, instr.Size)
	if instr.Addr != 0 {
		onAddr(instr.Addr)
	}
	return instr.Size, nil
}
