package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anykernel/bootprep/bootprep"
)

type ListArchiveCmd struct {
	Zip string `arg:"" help:"AnyKernel zip to list." type:"existingfile"`
}

func (l *ListArchiveCmd) Run(c *Context) error {
	ws, err := bootprep.NewWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	dir, err := ws.Mkdir("archive")
	if err != nil {
		return err
	}
	n, err := bootprep.ExtractArchive(c.ctx, l.Zip, dir, c.cfg.MaxArchiveSize)
	if err != nil {
		return err
	}

	kernel, err := bootprep.FindCandidate(dir, c.cfg.KernelNames)
	if err != nil {
		return err
	}
	dtb, err := bootprep.FindCandidate(dir, c.cfg.DTBNames)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "%s: %d bytes unpacked\n", l.Zip, n)
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.Mode().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		role := ""
		switch path {
		case kernel:
			role = "kernel"
		case dtb:
			role = "dtb"
		}
		format, err := bootprep.DetectFileFormat(path)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.stdout, "\t%-6s %10d  %-12s %s\n", role, info.Size(), format, rel)
		return nil
	})
}
