package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/anykernel/bootprep/bootprep"
	"github.com/anykernel/bootprep/bootprep/dtb"
	"github.com/fatih/color"
)

var CLI struct {
	Input  string `arg:"" help:"dtb.img or any file holding concatenated device trees." type:"existingfile"`
	OutDir string `help:"Directory to write the device trees to." default:"dtbs" type:"path"`
	Force  bool   `help:"Overwrite files that already exist."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("extractdtb"),
		kong.Description("Split a DTB image into one named file per board."))

	in, err := os.ReadFile(CLI.Input)
	ctx.FatalIfErrorf(err)

	if format := bootprep.DetectFormat(in); format != bootprep.FormatDTB {
		color.Yellow("%s starts with %s data, searching for device trees anyway", CLI.Input, format)
	}

	blobs := dtb.Extract(in)
	if len(blobs) == 0 {
		ctx.Fatalf("no device trees found in %s", CLI.Input)
	}
	ctx.FatalIfErrorf(os.MkdirAll(CLI.OutDir, 0755))

	for _, b := range blobs {
		out := filepath.Join(CLI.OutDir, b.Name)
		if _, err := os.Lstat(out); err == nil && !CLI.Force {
			color.Yellow("%s exists, skipping", out)
			continue
		}
		ctx.FatalIfErrorf(os.WriteFile(out, b.Data, 0644))

		if b.Parsed {
			fmt.Printf("%s (%d bytes)\n", out, len(b.Data))
		} else {
			color.Red("%s (%d bytes, not a valid device tree)", out, len(b.Data))
		}
	}
}
