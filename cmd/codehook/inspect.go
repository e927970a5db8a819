package main

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"codehook/codemgr"
)

// inspectCommand is a dry run of the prologue inspector over a hex byte
// dump: no trampoline is built and no patch is applied, matching
// bbcdisasm's own "disasm" command's read-only posture.
var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "Dry-run prologue inspection of a hex byte dump",
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

		sim := codemgr.NewSimulator(0x1000, len(code)+16)
		if err := sim.Write(sim.Base(), code); err != nil {
			return cli.Exit(err, 1)
		}

		adapter, err := adapterFor(archName, sim.Read)
		if err != nil {
			return err
		}
		codePoint := codePointFor(archName, sim.Base())

		result, err := backend.Inspect(adapter, codePoint)
		if err != nil {
			return cli.Exit(err, 1)
		}

		fmt.Printf("status              %s\n", result.Status)
		if result.Status != 0 {
			return nil
		}
		fmt.Printf("code_len_to_replace %d\n", result.CodeLenToReplace)
		fmt.Printf("lowered_code_len    %d\n", result.LoweredOriginalCodeLen)
		fmt.Printf("relocations         %d\n", len(result.Relocations))
		for i, r := range result.Relocations {
			fmt.Printf("  [%d] offset=%-3d size=%-2d addr=%#x grows_to=%d\n",
				i, r.Offset(), r.InstrSize(), r.Addr(), r.OffsetAddEnd())
		}
		return nil
	},
}
