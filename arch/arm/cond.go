// Package arm implements codehook.Backend for ARM (A32) and Thumb (T32),
// grounded in the Thumb decode-table style of
// _examples/other_examples/96899714_JetSetIlly-Gopher2600__hardware-memory-cartridge-arm-thumb.go.go
// and adapted to the mnemonic/operand-text matching scheme spec's
// textual-mnemonic coupling requires.
package arm

// Unconditional is the four-bit condition code meaning "always".
const Unconditional uint8 = 14

// condCodes maps a branch mnemonic's two-letter suffix to its four-bit
// ARM condition code. A bare "b"/"bl"/"blx" (no suffix) is unconditional.
var condCodes = map[string]uint8{
	"eq": 0, "ne": 1, "cs": 2, "cc": 3,
	"mi": 4, "pl": 5, "vs": 6, "vc": 7,
	"hi": 8, "ls": 9, "ge": 10, "lt": 11,
	"gt": 12, "le": 13,
}
