package codehook

// InstrCallback receives the decoded textual mnemonic, the byte offset of
// the instruction relative to the Decode call's address argument (always
// 0; kept for symmetry with the source API), and the instruction's length
// in bytes.
type InstrCallback func(text string, start, size int)

// AddrCallback receives a PC-relative absolute target address the
// decoder computed for the current instruction, if any.
type AddrCallback func(target uint64)

// Adapter is the disassembler adapter: an external collaborator that
// decodes one instruction at a time. Its textual output is consumed by
// substring and prefix matches only, never a formal parse, so a
// conforming Adapter must produce stable mnemonics. Decode returns the
// instruction size in bytes, or an error if the bytes at addr do not
// decode.
//
// ReadBytes is a small extension beyond the minimal source API: since any
// conforming decoder must already have the raw bytes in hand to produce
// a mnemonic, exposing them lets the trampoline builder copy verbatim
// prologue bytes without a second memory-reading collaborator.
type Adapter interface {
	Decode(addr uint64, onInstr InstrCallback, onAddr AddrCallback) (size int, err error)
	ReadBytes(addr uint64, n int) []byte
}
