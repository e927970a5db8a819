package codehook

import "errors"

// Status is the outcome of the prologue inspector for a single hook
// request. A status other than StatusOk means the context was discarded
// before any target bytes were touched.
type Status int

const (
	// StatusOk means the prologue was fully relocated and is safe to
	// overwrite.
	StatusOk Status = iota
	// StatusNotAccepted means an instruction in the prologue, or a
	// PC-relative form of one, could not be relocated.
	StatusNotAccepted
	// StatusBackEdge means either a branch inside the prologue targets
	// the region about to be overwritten, or the region following the
	// prologue contains a reference into it.
	StatusBackEdge
	// StatusTooSmall means the inspector ran out of budget (16 bytes on
	// x86-64) before accumulating the architecture's minimum overwrite
	// length.
	StatusTooSmall
	// StatusChildExit is reserved for architecture-defined use; the core
	// engine never produces it.
	StatusChildExit
	// StatusArchDefined2 is reserved for architecture-specific overrides.
	StatusArchDefined2
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusNotAccepted:
		return "NotAccepted"
	case StatusBackEdge:
		return "BackEdge"
	case StatusTooSmall:
		return "TooSmall"
	case StatusChildExit:
		return "ChildExit"
	case StatusArchDefined2:
		return "ArchDefined2"
	default:
		return "Status(?)"
	}
}

// Sentinel errors. The trampoline builder returns ErrOutOfMemory and
// ErrJumpTooFar, wrapped with github.com/pkg/errors where it adds context,
// so Cause() recovers the sentinel.
var (
	// ErrOutOfMemory means the code manager returned no memory for the
	// trampoline.
	ErrOutOfMemory = errors.New("codehook: code manager returned no executable memory")
	// ErrJumpTooFar means the architecture's reachability predicate
	// rejected the distance between the patch site and the trampoline.
	ErrJumpTooFar = errors.New("codehook: trampoline is unreachable from the patch site")
	// ErrPatchFailed describes a patch record the memory-modify utility
	// did not report as applied. No function in this package returns it:
	// InstallHooks reports patch outcomes only through its success count.
	ErrPatchFailed = errors.New("codehook: patch record was not applied")
)
