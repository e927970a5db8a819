// Package codemgr provides a CodeManager/MemoryModifier/CacheFlusher
// implementation backed by a single in-process byte arena, for tests and
// for the command-line demo. It never touches another process; a
// ptrace- or /proc/mem-backed implementation is a Non-goal, matching
// spec's explicit exclusion of the injection transport.
package codemgr

import (
	"sync"

	"github.com/pkg/errors"

	"codehook"
)

// Simulator is a bump allocator over a fixed-size byte arena, simulating
// "executable memory near codePoint" without any OS memory-protection
// calls. It implements codehook.CodeManager, codehook.MemoryModifier and
// codehook.CacheFlusher so a caller can exercise the whole pipeline
// in-process.
type Simulator struct {
	mu     sync.Mutex
	arena  []byte
	base   uintptr
	cursor int

	flushed []flushRecord
}

type flushRecord struct {
	addr uintptr
	n    int
}

// NewSimulator allocates an arena of size bytes addressed starting at
// base. base is an arbitrary simulated address, not a real pointer; the
// arena itself is the backing store for every NewCodeMem/ApplyBatch call.
func NewSimulator(base uintptr, size int) *Simulator {
	return &Simulator{arena: make([]byte, size), base: base}
}

// NewContext returns a fresh, zero-valued CodeContext for name. The
// simulator does not track contexts itself; the engine fills in the
// fields as the pipeline progresses.
func (s *Simulator) NewContext(name string) *codehook.CodeContext {
	return &codehook.CodeContext{Name: name}
}

// NewCodeMem hands out the next free region of the arena, ignoring hint:
// a real code manager would try to place the region within branch range
// of hint, but the simulator's arena is small enough that every region
// is in range of every patch site it will be asked to service.
func (s *Simulator) NewCodeMem(hint uintptr, size int) ([]byte, uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Round up to 4-byte alignment so ARM/Thumb literal pools land on a
	// natural boundary without the backend having to pad for it.
	if s.cursor%4 != 0 {
		s.cursor += 4 - s.cursor%4
	}
	if s.cursor+size > len(s.arena) {
		return nil, 0
	}
	region := s.arena[s.cursor : s.cursor+size]
	addr := s.base + uintptr(s.cursor)
	s.cursor += size
	return region, addr
}

// addrToSlice maps a simulated address back into the arena, used by
// ApplyBatch to resolve PatchRecord.Addr values that originated either
// from NewCodeMem or from the caller's original code pointers (which, in
// the demo CLI, are themselves addresses inside this same arena).
func (s *Simulator) addrToSlice(addr uintptr, n int) ([]byte, error) {
	if addr < s.base || addr+uintptr(n) > s.base+uintptr(len(s.arena)) {
		return nil, errors.Errorf("codemgr: address %#x[:%d] is outside the simulated arena", addr, n)
	}
	off := addr - s.base
	return s.arena[off : off+uintptr(n)], nil
}

// ApplyBatch copies every record's bytes into the arena in one pass and
// reports how many succeeded. A record whose Addr/Bytes fall outside the
// arena is skipped rather than aborting the rest, matching the
// best-effort batch semantics §6 specifies for the real memory-modify
// primitive.
func (s *Simulator) ApplyBatch(records []codehook.PatchRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	succeeded := 0
	var firstErr error
	for _, rec := range records {
		if len(rec.Bytes) == 0 {
			continue
		}
		dst, err := s.addrToSlice(rec.Addr, len(rec.Bytes))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		copy(dst, rec.Bytes)
		succeeded++
	}
	if succeeded == 0 && firstErr != nil {
		return 0, firstErr
	}
	return succeeded, nil
}

// FlushCode records the flushed range. A real implementation would issue
// an instruction-cache-invalidation syscall (or, per spec's note on
// self-modifying code near the patch site, a full pipeline flush); the
// simulator only needs to prove it was called once per trampoline with a
// sane, fully-written range.
func (s *Simulator) FlushCode(addr uintptr, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = append(s.flushed, flushRecord{addr: addr, n: n})
}

// Flushes returns a copy of the ranges passed to FlushCode, for tests
// asserting the pipeline flushed exactly the trampoline it built.
func (s *Simulator) Flushes() []codehook.PatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]codehook.PatchRecord, len(s.flushed))
	for i, f := range s.flushed {
		out[i] = codehook.PatchRecord{Addr: f.addr, Bytes: make([]byte, f.n)}
	}
	return out
}

// Read returns a copy of n bytes at the simulated address addr, for
// constructing a disasm.MemReader over the arena in tests and in the CLI.
func (s *Simulator) Read(addr uint64, n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.addrToSlice(uintptr(addr), n)
	if err != nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Write copies src into the arena at the simulated address addr, for
// seeding test fixtures and the CLI's demo payload with the "original"
// code a hook will be installed over. It also advances the bump
// allocator past the written region if necessary, so a later NewCodeMem
// call (building the trampoline) can never land on top of bytes a caller
// has already placed here.
func (s *Simulator) Write(addr uintptr, src []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst, err := s.addrToSlice(addr, len(src))
	if err != nil {
		return err
	}
	copy(dst, src)
	if end := int(addr-s.base) + len(src); end > s.cursor {
		s.cursor = end
	}
	return nil
}

// Base returns the simulated base address of the arena.
func (s *Simulator) Base() uintptr { return s.base }
