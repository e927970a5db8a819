package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	cli "github.com/urfave/cli/v2"

	"codehook"
	"codehook/arch/arm"
	"codehook/arch/x64"
	"codehook/disasm"
)

// parseHexBytes turns a whitespace-separated hex dump ("55 48 89 e5 ...")
// into a byte slice, the input format both demo commands accept in place
// of a real target binary.
func parseHexBytes(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("could not parse hex bytes: %v", err), 1)
	}
	return b, nil
}

// archName is one of "x64", "arm", "thumb".
func backendFor(archName string) (codehook.Backend, error) {
	switch archName {
	case "x64":
		return x64.Backend{}, nil
	case "arm", "thumb":
		return arm.Backend{}, nil
	default:
		return nil, cli.Exit(fmt.Sprintf("unknown --arch %q (want x64, arm, or thumb)", archName), 1)
	}
}

// adapterFor builds the default disasm.Adapter for archName over mem.
func adapterFor(archName string, mem disasm.MemReader) (codehook.Adapter, error) {
	switch archName {
	case "x64":
		return disasm.NewX86Adapter(mem), nil
	case "arm":
		return disasm.NewARMAdapter(mem, false), nil
	case "thumb":
		return disasm.NewARMAdapter(mem, true), nil
	default:
		return nil, cli.Exit(fmt.Sprintf("unknown --arch %q (want x64, arm, or thumb)", archName), 1)
	}
}

// codePointFor folds the Thumb bit into base when archName is "thumb", so
// callers only need to pass one flag for both the adapter and the code
// pointer passed to Backend.Inspect.
func codePointFor(archName string, base uintptr) uintptr {
	if archName == "thumb" {
		return codehook.WithMode(base, true)
	}
	return base
}

func main() {
	app := cli.NewApp()
	app.Name = "codehook"
	app.Usage = "Inspect and hook machine-code function prologues"
	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		return nil
	}
	app.Commands = []*cli.Command{
		inspectCommand,
		installCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
