// Package x64 implements codehook.Backend for x86-64, grounded on the
// opcode-table-driven decoding style of
// _examples/chriskillpack-bbcdisasm/opcodes.go adapted to the
// substring/allow-list matching scheme spec's textual-mnemonic coupling
// requires.
package x64

import (
	"strings"

	"codehook"
)

// allowedMnemonics is the x86-64 prologue allow-list. Matching is by
// mnemonic prefix (the first whitespace-delimited token of the
// disassembler's text), after stripping a leading "rex.w " / "rex " the
// way the REX.W prefix is stripped before matching.
var allowedMnemonics = map[string]bool{
	"mov": true, "add": true, "sub": true, "div": true,
	"push": true, "pop": true, "mul": true, "xor": true,
	"or": true, "and": true, "test": true,
}

const (
	minOverwrite = 6
	maxPrologue  = 16
)

// Backend implements codehook.Backend for x86-64.
type Backend struct{}

func (Backend) Arch(uintptr) codehook.Arch { return codehook.ArchX64 }

func (Backend) MinOverwriteLen(uintptr) int { return minOverwrite }

func (Backend) JumpBackSize(uintptr) int { return 5 }

// Inspect walks the prologue per §4.1: decode until at least 6 bytes are
// consumed, checking each instruction's mnemonic against the allow-list
// and rejecting any "rip"-relative form, stopping with TooSmall if 16
// bytes pass without reaching the minimum. Descriptors are never
// produced; any PC-relative instruction is rejected outright rather than
// relocated.
func (Backend) Inspect(adapter codehook.Adapter, codePoint uintptr) (*codehook.CheckCodeResult, error) {
	entry := codePoint
	consumed := 0

	for consumed < maxPrologue {
		var mnemonic string
		size, err := adapter.Decode(uint64(entry)+uint64(consumed), func(text string, _, _ int) {
			mnemonic = text
		}, func(uint64) {})
		if err != nil {
			return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
		}
		if size <= 0 {
			return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
		}

		if strings.Contains(strings.ToLower(mnemonic), "rip") {
			return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
		}
		if !matchesAllowList(mnemonic) {
			return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
		}

		if consumed < minOverwrite && consumed+size > maxPrologue {
			return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusTooSmall}, nil
		}

		consumed += size
		if consumed >= minOverwrite {
			prologue := adapter.ReadBytes(uint64(entry), consumed)
			return &codehook.CheckCodeResult{
				CodePoint:              codePoint,
				Status:                 codehook.StatusOk,
				CodeLenToReplace:       consumed,
				LoweredOriginalCodeLen: consumed,
				PrologueBytes:          prologue,
			}, nil
		}
	}

	return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusTooSmall}, nil
}

// matchesAllowList extracts the mnemonic token (stripping a leading REX.W
// prefix so the comparison matches on the underlying opcode) and checks it
// against allowedMnemonics.
func matchesAllowList(text string) bool {
	fields := strings.Fields(strings.ToLower(text))
	for len(fields) > 0 && strings.HasPrefix(fields[0], "rex") {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return false
	}
	return allowedMnemonics[fields[0]]
}
