package codehook

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Trampoline is the executable buffer exclusively owned by its
// CodeContext for the process lifetime: the copy of the fixed hook
// template, the relocated prologue, and the trailing jump-back. Once
// built and flushed it is never mutated, so no locking is needed once
// other threads can observe it.
type Trampoline struct {
	Base  uintptr
	Bytes []byte
}

// buildTrampoline performs the steps of §4.4: allocate a region sized for
// the template plus the lowered prologue plus the jump-back, copy the
// template and fill its callback slots, replay the relocation
// descriptors over the prologue bytes, and append the jump back to the
// first non-displaced original instruction. The trampoline is fully
// constructed and flushed before this function returns, satisfying the
// ordering guarantee that no thread observes a half-written trampoline.
func buildTrampoline(
	backend Backend,
	tmpl HookTemplate,
	result *CheckCodeResult,
	mgr CodeManager,
	flusher CacheFlusher,
	entryCallback, returnCallback uintptr,
) (*Trampoline, error) {
	if err := result.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid check-code result")
	}

	jumpBackSize := backend.JumpBackSize(result.CodePoint)
	header := backend.HeaderSize(result.CodePoint)
	total := header + len(tmpl.Bytes) + result.LoweredOriginalCodeLen + jumpBackSize

	mem, base := mgr.NewCodeMem(result.CodePoint, total)
	if mem == nil || base == 0 {
		return nil, ErrOutOfMemory
	}
	if len(mem) < total {
		return nil, errors.Wrap(ErrOutOfMemory, "code manager returned a short region")
	}

	if !backend.Reachable(result.CodePoint, base) {
		return nil, ErrJumpTooFar
	}

	codeStart := header
	if header > 0 {
		binary.LittleEndian.PutUint64(mem[:8], uint64(base)+uint64(codeStart))
	}

	copy(mem[codeStart:], tmpl.Bytes)
	if tmpl.EntryCallbackSlot >= 0 {
		binary.LittleEndian.PutUint64(mem[codeStart+tmpl.EntryCallbackSlot:], uint64(entryCallback))
	}
	if tmpl.ReturnCallbackSlot >= 0 {
		binary.LittleEndian.PutUint64(mem[codeStart+tmpl.ReturnCallbackSlot:], uint64(returnCallback))
	}

	cursor := codeStart + len(tmpl.Bytes)
	srcCursor := 0
	for _, reloc := range result.Relocations {
		if reloc.Offset() > srcCursor {
			n := copy(mem[cursor:], result.PrologueBytes[srcCursor:reloc.Offset()])
			cursor += n
		}
		dst := mem[cursor : cursor+reloc.OffsetAddEnd()]
		n, err := backend.EmitReplacement(dst, uint64(base)+uint64(cursor), reloc)
		if err != nil {
			return nil, errors.Wrapf(err, "emitting replacement at prologue offset %d", reloc.Offset())
		}
		cursor += n
		srcCursor = reloc.Offset() + reloc.InstrSize()
	}
	if srcCursor < result.CodeLenToReplace {
		n := copy(mem[cursor:], result.PrologueBytes[srcCursor:result.CodeLenToReplace])
		cursor += n
	}

	jbDst := mem[cursor : cursor+jumpBackSize]
	n, err := backend.EmitJumpBack(jbDst, uint64(base)+uint64(cursor), result.CodePoint, result.CodeLenToReplace)
	if err != nil {
		return nil, errors.Wrap(err, "emitting jump back")
	}
	cursor += n

	flusher.FlushCode(base, cursor)

	return &Trampoline{Base: base, Bytes: mem[:cursor]}, nil
}
