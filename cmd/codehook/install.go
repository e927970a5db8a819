package main

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"codehook"
	"codehook/codemgr"
)

// placeholderTemplate is a minimal hook body: a few nop bytes (x86 `nop`,
// Thumb `nop`) with no real callback invocation, standing in for the
// hook-body assembly the engine takes no position on (§1 Non-goals). Its
// two callback slots are left unfilled (offset -1) since the demo has
// nothing meaningful to call.
func placeholderTemplate(archName string) codehook.HookTemplate {
	if archName == "x64" {
		return codehook.HookTemplate{Bytes: []byte{0x90, 0x90, 0x90, 0x90}, EntryCallbackSlot: -1, ReturnCallbackSlot: -1}
	}
	return codehook.HookTemplate{Bytes: []byte{0x00, 0xbf, 0x00, 0xbf}, EntryCallbackSlot: -1, ReturnCallbackSlot: -1}
}

// installCommand runs the full pipeline — inspect, back-edge check, build
// trampoline, patch — against codemgr.Simulator's in-process arena, the
// end-to-end demo bbcdisasm has no equivalent of (its own commands are all
// read-only), built instead on the pattern of spec.md §6's public entry
// point.
var installCommand = &cli.Command{
	Name:      "install",
	Usage:     "Install a hook over a hex byte dump against the in-process simulator",
	ArgsUsage: "hexbytes",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "arch",
			Value: "x64",
			Usage: "target architecture: x64, arm, or thumb",
		},
	},
	Action: func(c *cli.Context) error {
		args := c.Args()
		if args.Len() < 1 {
			return cli.Exit("insufficient arguments", 1)
		}

		archName := c.String("arch")
		backend, err := backendFor(archName)
		if err != nil {
			return err
		}

		code, err := parseHexBytes(args.First())
		if err != nil {
			return err
		}

		// Arena large enough for the original code plus one trampoline;
		// real sizing is the caller's concern (§6), the demo just picks
		// something generous.
		sim := codemgr.NewSimulator(0x10000, len(code)+4096)
		if err := sim.Write(sim.Base(), code); err != nil {
			return cli.Exit(err, 1)
		}

		adapter, err := adapterFor(archName, sim.Read)
		if err != nil {
			return err
		}
		codePoint := codePointFor(archName, sim.Base())

		engine := &codehook.Engine{
			Backend:        backend,
			Adapter:        adapter,
			CodeManager:    sim,
			MemoryModifier: sim,
			CacheFlusher:   sim,
			Template:       placeholderTemplate(archName),
		}

		reqs := []codehook.HookRequest{{CodePoint: codePoint, Name: "demo"}}
		installed, report := engine.InstallHooks(reqs, 0, 0)

		fmt.Printf("requested %d\n", report.Requested)
		fmt.Printf("installed %d\n", installed)
		for status, n := range report.Rejected {
			fmt.Printf("rejected  %-12s %d\n", status, n)
		}
		return nil
	},
}
