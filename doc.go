// Package codehook is a machine-code relocation and trampoline installation
// engine. It decides whether a target function's entry region can be safely
// overwritten, relocates any displaced instructions that encode PC-relative
// information, synthesizes the jump that diverts control into a trampoline,
// and appends a jump back to the first non-displaced original instruction.
//
// The engine does not implement a disassembler, page-protection toggling,
// executable-memory allocation, hook-body assembly templates, symbol
// resolution, thread quiescence, or a high-level tracing API. Those are
// external collaborators, named as interfaces in this package and
// codehook/codemgr, and supplied by the caller. See Engine.
package codehook
