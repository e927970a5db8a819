package arm

import (
	"regexp"
	"strconv"
	"strings"

	"codehook"
)

// Backend implements codehook.Backend for ARM (A32) and Thumb (T32); a
// single core switches modes per function, so one Backend value serves
// both, dispatching per call on the code pointer's Thumb bit.
type Backend struct{}

func (Backend) Arch(codePoint uintptr) codehook.Arch {
	if codehook.IsThumb(codePoint) {
		return codehook.ArchThumb
	}
	return codehook.ArchARM
}

// MinOverwriteLen is 8 for ARM, 8 for word-aligned Thumb, 10 for
// unaligned Thumb (§3).
func (Backend) MinOverwriteLen(codePoint uintptr) int {
	if !codehook.IsThumb(codePoint) {
		return 8
	}
	if codehook.MaskMode(codePoint)%4 == 0 {
		return 8
	}
	return 10
}

var allowedMnemonics = map[string]bool{
	"mov": true, "push": true, "pop": true, "ldr": true, "str": true,
	"stm": true, "ldm": true, "add": true, "sub": true, "mul": true,
	"div": true, "xor": true, "or": true, "and": true, "not": true,
	"cmp": true, "lsl": true, "lsr": true, "asr": true, "b": true,
	"bl": true, "cb": true, "asl": true, "tst": true, "mvn": true,
	"vpush": true, "vld": true, "vmov": true,
}

var (
	reLdrPc = regexp.MustCompile(`^ldr\s+r(\d)\s*,\s*\[\s*pc\b`)
	reAddPc = regexp.MustCompile(`^add\s+r(\d)\s*,\s*pc\s*,\s*(#?-?\w+)`)
)

// stripWidthSuffix removes the Thumb width hint ".n"/".w" from a token,
// which carries no semantic meaning for the matching rules below.
func stripWidthSuffix(tok string) string {
	tok = strings.TrimSuffix(tok, ".n")
	tok = strings.TrimSuffix(tok, ".w")
	return tok
}

// branchCond reports whether tok is a bare "b" or a conditional "b<cc>"
// mnemonic, returning the four-bit condition code (Unconditional for the
// bare form).
func branchCond(tok string) (uint8, bool) {
	if tok == "b" {
		return Unconditional, true
	}
	if !strings.HasPrefix(tok, "b") || len(tok) < 2 {
		return 0, false
	}
	if c, ok := condCodes[tok[1:]]; ok {
		return c, true
	}
	return 0, false
}

// registerOperand reports whether a branch/bl/bx's sole operand is a bare
// register (the register-indirect form, copied verbatim) rather than an
// immediate target.
var reRegisterOperand = regexp.MustCompile(`^r\d{1,2}$|^ip$|^lr$|^pc$`)

func registerOperand(operand string) bool {
	return reRegisterOperand.MatchString(strings.TrimSpace(operand))
}

// Inspect walks the prologue per §4.2.
func (b Backend) Inspect(adapter codehook.Adapter, codePoint uintptr) (*codehook.CheckCodeResult, error) {
	thumb := codehook.IsThumb(codePoint)
	entry := codehook.MaskMode(codePoint)
	min := b.MinOverwriteLen(codePoint)

	var relocs []codehook.Relocation
	consumed := 0
	ipClobbered := false

	for {
		var text string
		var targetAddr uint64
		size, err := adapter.Decode(uint64(entry)+uint64(consumed), func(t string, _, _ int) {
			text = t
		}, func(a uint64) {
			targetAddr = a
		})
		if err != nil || size <= 0 {
			return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
		}

		lower := strings.ToLower(text)
		fields := strings.Fields(lower)
		if len(fields) == 0 {
			return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
		}
		tok0 := stripWidthSuffix(fields[0])
		mentionsIP := strings.Contains(lower, "ip")

		instrAddr := uint64(entry) + uint64(consumed)
		offset := consumed

		switch {
		case tok0 == "bl" || tok0 == "blx":
			operand := strings.TrimPrefix(lower, fields[0])
			if registerOperand(operand) {
				if ipClobbered && mentionsIP {
					return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
				}
				// register-indirect: copied verbatim, no descriptor
				break
			}
			relocs = append(relocs, codehook.NewBranchLink(offset, size, targetAddr, replacementSize(kindBL, thumb), thumb, tok0 == "blx"))

		case tok0 == "bx":
			operand := strings.TrimPrefix(lower, fields[0])
			if !registerOperand(operand) {
				return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
			}
			if ipClobbered && mentionsIP {
				return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
			}
			// register-indirect: copied verbatim, no descriptor

		case tok0 == "cbz" || tok0 == "cbnz":
			if !thumb {
				return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
			}
			if targetAddr < uint64(entry)+uint64(min) {
				return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusBackEdge}, nil
			}
			reg, ok := cbRegister(lower)
			if !ok {
				return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
			}
			relocs = append(relocs, codehook.NewCompareBranch(offset, size, targetAddr, replacementSize(kindCB, thumb), thumb, reg, tok0 == "cbnz"))

		default:
			if cond, ok := branchCond(tok0); ok {
				if targetAddr < uint64(entry)+uint64(min) {
					return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusBackEdge}, nil
				}
				relocs = append(relocs, codehook.NewBranch(offset, size, targetAddr, replacementSize(kindB, thumb), thumb, cond))
				break
			}

			if !allowedMnemonics[tok0] {
				return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
			}

			if (tok0 == "ldr" || tok0 == "add") && strings.Contains(lower, "pc") {
				if m := reLdrPc.FindStringSubmatch(lower); m != nil {
					reg := mustAtoi(m[1])
					if reg > 9 {
						return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
					}
					relocs = append(relocs, codehook.NewLoadPC(offset, size, targetAddr, replacementSize(kindLdrPc, thumb), thumb, uint8(reg)))
				} else if m := reAddPc.FindStringSubmatch(lower); m != nil {
					reg := mustAtoi(m[1])
					operand := m[2]
					if strings.HasPrefix(operand, "#") {
						imm, ok := parseImm(operand)
						if !ok {
							return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
						}
						bias := uint64(8)
						if thumb {
							bias = 4
						}
						aligned := instrAddr &^ 3
						addr := (aligned + bias + uint64(imm)) &^ 3
						relocs = append(relocs, codehook.NewMovAddr(offset, size, addr, replacementSize(kindMovAddr, thumb), thumb, uint8(reg)))
					} else {
						// add Rn, pc, Rm (register form): the source's
						// relocation computes an address that ignores
						// Rm and is therefore wrong; reject rather than
						// emit a broken AddPc, per the documented fix.
						return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
					}
				} else {
					return &codehook.CheckCodeResult{CodePoint: codePoint, Status: codehook.StatusNotAccepted}, nil
				}
			}
			// else: plain instruction, copied verbatim, no descriptor
		}

		if mentionsIP {
			ipClobbered = true
		}

		consumed += size
		if consumed >= min {
			prologue := adapter.ReadBytes(uint64(entry), consumed)
			return &codehook.CheckCodeResult{
				CodePoint:              codePoint,
				Status:                 codehook.StatusOk,
				CodeLenToReplace:       consumed,
				LoweredOriginalCodeLen: lowerLen(consumed, relocs),
				Relocations:            relocs,
				PrologueBytes:          prologue,
			}, nil
		}
	}
}

func lowerLen(codeLen int, relocs []codehook.Relocation) int {
	sum := codeLen
	for _, r := range relocs {
		sum += r.OffsetAddEnd() - r.InstrSize()
	}
	return sum
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseImm(s string) (int64, bool) {
	s = strings.TrimPrefix(s, "#")
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

var reCBOperand = regexp.MustCompile(`r(\d)\s*,`)

func cbRegister(lower string) (uint8, bool) {
	m := reCBOperand.FindStringSubmatch(lower)
	if m == nil {
		return 0, false
	}
	n := mustAtoi(m[1])
	if n > 7 {
		return 0, false
	}
	return uint8(n), true
}
