package codehook

// checkBackEdge disassembles instructions starting at entry+codeLen for a
// bounded window — the same bound the inspector uses, the architecture's
// minimum overwrite length — and reports whether any instruction
// references an address inside [entry, entry+codeLen). Only address
// references matter; mnemonics are ignored. A back edge would resume
// execution inside bytes the patcher is about to rewrite.
func checkBackEdge(adapter Adapter, backend Backend, codePoint uintptr, codeLen int) bool {
	entry := maskMode(codePoint)
	window := backend.MinOverwriteLen(codePoint)

	consumed := 0
	addr := entry + uintptr(codeLen)
	for consumed < window {
		hit := false
		size, err := adapter.Decode(uint64(addr)+uint64(consumed), func(string, int, int) {}, func(target uint64) {
			if target >= uint64(entry) && target < uint64(entry)+uint64(codeLen) {
				hit = true
			}
		})
		if err != nil || size <= 0 {
			break
		}
		if hit {
			return true
		}
		consumed += size
	}
	return false
}
