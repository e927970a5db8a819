package codehook

// HookRequest describes one function to hook. CodePoint is the function's
// entry address with the architecture's mode bit preserved in bit 0 (ARM's
// Thumb bit; unused and expected clear on x86-64). SizeHint is carried on
// the request but not read by the engine: the trampoline size requested
// from the code manager is computed from the inspected prologue.
type HookRequest struct {
	CodePoint uintptr
	Name      string
	SizeHint  int
}

// CodeContext is the per-hook record created by the code manager and kept
// alive for the lifetime of the process; hooks are never uninstalled in
// this engine. Name is borrowed from the caller.
type CodeContext struct {
	Name           string
	CodePoint      uintptr
	TrampolineBase uintptr
	EntryCallback  uintptr
	ReturnCallback uintptr
}

// thumbBit is the low bit of an ARM code pointer: set selects T32 (Thumb),
// clear selects A32.
const thumbBit = uintptr(1)

// MaskMode clears the mode bit so the value can be used as a real address.
func MaskMode(p uintptr) uintptr { return p &^ thumbBit }

// IsThumb reports whether p has the Thumb bit set.
func IsThumb(p uintptr) bool { return p&thumbBit != 0 }

// WithMode sets or clears the mode bit on an address, for forming a branch
// target that must resume in the given mode.
func WithMode(p uintptr, thumb bool) uintptr {
	if thumb {
		return MaskMode(p) | thumbBit
	}
	return MaskMode(p)
}

func maskMode(p uintptr) uintptr { return MaskMode(p) }
