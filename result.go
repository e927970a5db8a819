package codehook

import "github.com/pkg/errors"

// CheckCodeResult is produced by a Backend's prologue inspector.
type CheckCodeResult struct {
	CodePoint uintptr
	Status    Status

	// CodeLenToReplace is the number of bytes of the original
	// instruction stream that will be overwritten at the entry.
	CodeLenToReplace int
	// LoweredOriginalCodeLen is the number of bytes the displaced
	// instructions occupy after relocation into the trampoline. Always
	// >= CodeLenToReplace.
	LoweredOriginalCodeLen int

	// Relocations holds one descriptor per instruction that could not
	// be copied verbatim, in strictly increasing Offset order.
	Relocations []Relocation

	// PrologueBytes are the CodeLenToReplace raw bytes read from the
	// target during inspection, retained so the builder does not need
	// a second memory-reading collaborator.
	PrologueBytes []byte
}

// Validate checks the invariants from the data model: relocations appear
// in increasing, non-overlapping offset order, each fits inside
// CodeLenToReplace, and LoweredOriginalCodeLen equals CodeLenToReplace
// plus the sum of each descriptor's growth.
func (r *CheckCodeResult) Validate() error {
	prevEnd := -1
	sum := 0
	for i, d := range r.Relocations {
		if d.Offset() < prevEnd {
			return errors.Errorf("relocation %d at offset %d overlaps previous descriptor ending at %d", i, d.Offset(), prevEnd)
		}
		if d.Offset()+d.InstrSize() > r.CodeLenToReplace {
			return errors.Errorf("relocation %d at offset %d+%d exceeds code_len_to_replace %d", i, d.Offset(), d.InstrSize(), r.CodeLenToReplace)
		}
		sum += d.OffsetAddEnd() - d.InstrSize()
		prevEnd = d.Offset() + d.InstrSize()
	}
	if want := r.CodeLenToReplace + sum; r.LoweredOriginalCodeLen != want {
		return errors.Errorf("lowered_original_code_len %d does not match code_len_to_replace + growth %d", r.LoweredOriginalCodeLen, want)
	}
	return nil
}
