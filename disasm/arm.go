package disasm

import (
	"errors"

	"golang.org/x/arch/arm/armasm"

	"codehook"
)

var errNoBytes = errors.New("codehook/disasm: no bytes available at address")

// armAdapter is the default codehook.Adapter for ARM/Thumb, built on
// golang.org/x/arch/arm/armasm. Mode is fixed at construction and passed
// to armasm.Decode on every call.
type armAdapter struct {
	mem  MemReader
	mode armasm.Mode
}

// NewARMAdapter returns a codehook.Adapter that decodes ARM (A32)
// instructions via golang.org/x/arch/arm/armasm. armasm decodes ARM mode
// only: with thumb set, every Decode call returns armasm's
// unsupported-mode error.
func NewARMAdapter(mem MemReader, thumb bool) codehook.Adapter {
	mode := armasm.ModeARM
	if thumb {
		mode = armasm.ModeThumb
	}
	return &armAdapter{mem: mem, mode: mode}
}

func (a *armAdapter) ReadBytes(addr uint64, n int) []byte {
	return a.mem(addr, n)
}

func (a *armAdapter) Decode(addr uint64, onInstr codehook.InstrCallback, onAddr codehook.AddrCallback) (int, error) {
	// A 32-bit Thumb-2 instruction is the longest form; 4 bytes covers
	// every ARM and Thumb encoding.
	buf := a.mem(addr, 4)
	if len(buf) == 0 {
		return 0, errNoBytes
	}

	inst, err := armasm.Decode(buf, a.mode)
	if err != nil {
		return 0, err
	}

	text := inst.String()
	onInstr(text, 0, inst.Len)

	for _, arg := range inst.Args {
		if arg == nil {
			break
		}
		if mem, ok := arg.(armasm.Mem); ok && mem.Base == armasm.PC {
			// PC-relative literal load: the literal sits at the
			// word-aligned PC plus the immediate offset. Register-indexed
			// forms (Sign != 0) have no static target and are not reported.
			if mem.Mode == armasm.AddrOffset && mem.Sign == 0 {
				pc := (addr + armPCBias(a.mode)) &^ 3
				onAddr(uint64(int64(pc) + int64(mem.Offset)))
			}
			continue
		}
		if pcrel, ok := arg.(armasm.PCRel); ok {
			target := uint64(int64(addr) + int64(armPCBias(a.mode)) + int64(pcrel))
			onAddr(target)
		}
	}

	return inst.Len, nil
}

// armPCBias is the value the ARM core adds to the instruction address to
// form the "PC" an instruction at that address observes: 8 in ARM state,
// 4 in Thumb state (the pipeline-depth bias).
func armPCBias(mode armasm.Mode) uint64 {
	if mode == armasm.ModeThumb {
		return 4
	}
	return 8
}
