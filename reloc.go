package codehook

// Relocation is one entry of a prologue's relocation descriptor list: an
// instruction that could not be copied verbatim because it carries
// PC-relative information. It is modeled as a closed sum type — one
// concrete struct per kind, each with its own variant payload — rather
// than a single struct with a kind tag and unused fields. The unexported
// sealing method keeps the set of implementations closed to this package;
// the ARM backend's EmitReplacement type switch has a default arm that
// returns an error for any kind it does not handle.
type Relocation interface {
	// Offset is the byte offset of the original instruction from the
	// start of the prologue.
	Offset() int
	// InstrSize is the length of the original instruction: 2 or 4 bytes
	// on ARM/Thumb.
	InstrSize() int
	// Addr is the absolute address the original instruction referenced.
	Addr() uint64
	// OffsetAddEnd is the length of the replacement sequence emitted
	// into the trampoline.
	OffsetAddEnd() int
	// Thumb reports whether the original instruction was decoded in
	// Thumb (T32) mode, since a Relocation value carries no reference
	// back to the CheckCodeResult it came from and the backend needs
	// the mode to pick an encoding.
	Thumb() bool

	sealed()
}

type relocBase struct {
	offset       int
	instrSize    int
	addr         uint64
	offsetAddEnd int
	thumb        bool
}

func (r relocBase) Offset() int       { return r.offset }
func (r relocBase) InstrSize() int    { return r.instrSize }
func (r relocBase) Addr() uint64      { return r.addr }
func (r relocBase) OffsetAddEnd() int { return r.offsetAddEnd }
func (r relocBase) Thumb() bool       { return r.thumb }
func (relocBase) sealed()             {}

// BranchLink is a relocated `bl`/`blx` with an immediate target.
type BranchLink struct {
	relocBase
	IsBLX bool
}

// NewBranchLink builds a BranchLink descriptor.
func NewBranchLink(offset, instrSize int, addr uint64, offsetAddEnd int, thumb, isBLX bool) BranchLink {
	return BranchLink{relocBase{offset, instrSize, addr, offsetAddEnd, thumb}, isBLX}
}

// CompareBranch is a relocated Thumb `cbz`/`cbnz`.
type CompareBranch struct {
	relocBase
	Reg     uint8
	NotZero bool
}

// NewCompareBranch builds a CompareBranch descriptor.
func NewCompareBranch(offset, instrSize int, addr uint64, offsetAddEnd int, thumb bool, reg uint8, notZero bool) CompareBranch {
	return CompareBranch{relocBase{offset, instrSize, addr, offsetAddEnd, thumb}, reg, notZero}
}

// Branch is a relocated conditional or unconditional branch. Cond follows
// the ARM condition-code encoding; 14 means unconditional.
type Branch struct {
	relocBase
	Cond uint8
}

// NewBranch builds a Branch descriptor.
func NewBranch(offset, instrSize int, addr uint64, offsetAddEnd int, thumb bool, cond uint8) Branch {
	return Branch{relocBase{offset, instrSize, addr, offsetAddEnd, thumb}, cond}
}

// Unconditional is the condition-code value meaning "always".
const Unconditional uint8 = 14

// AddPC is a relocated `add Rn, pc, Rm` (register form).
type AddPC struct {
	relocBase
	Reg uint8
}

// NewAddPC builds an AddPC descriptor.
func NewAddPC(offset, instrSize int, addr uint64, offsetAddEnd int, thumb bool, reg uint8) AddPC {
	return AddPC{relocBase{offset, instrSize, addr, offsetAddEnd, thumb}, reg}
}

// LoadPC is a relocated `ldr Rn, [pc, #imm]`.
type LoadPC struct {
	relocBase
	Reg uint8
}

// NewLoadPC builds a LoadPC descriptor.
func NewLoadPC(offset, instrSize int, addr uint64, offsetAddEnd int, thumb bool, reg uint8) LoadPC {
	return LoadPC{relocBase{offset, instrSize, addr, offsetAddEnd, thumb}, reg}
}

// MovAddr is a relocated `add Rn, pc, #imm`, materialized as a direct
// constant load rather than a PC-relative computation.
type MovAddr struct {
	relocBase
	Reg uint8
}

// NewMovAddr builds a MovAddr descriptor.
func NewMovAddr(offset, instrSize int, addr uint64, offsetAddEnd int, thumb bool, reg uint8) MovAddr {
	return MovAddr{relocBase{offset, instrSize, addr, offsetAddEnd, thumb}, reg}
}
