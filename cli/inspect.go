package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/anykernel/bootprep/bootprep"
	"github.com/anykernel/bootprep/bootprep/dtb"
)

type InspectCmd struct {
	File   string `arg:"" help:"File to inspect." type:"existingfile"`
	Offset int    `optional:"" type:"int" help:"Where to start the dump."`
	Length int    `optional:"" type:"int" help:"How many bytes to dump." default:"128"`
}

var ErrorNegativeRange = errors.New("Offset and length must not be negative")

func (i *InspectCmd) Run(c *Context) error {
	if i.Offset < 0 || i.Length < 0 {
		return fmt.Errorf("%w: offset %d, length %d", ErrorNegativeRange, i.Offset, i.Length)
	}

	f, err := os.Open(i.File)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, 64)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	format := bootprep.DetectFormat(head[:n])
	fmt.Fprintf(c.stdout, "%s: %s\n", i.File, format)

	if format == bootprep.FormatDTB {
		data, err := os.ReadFile(i.File)
		if err != nil {
			return err
		}
		for _, b := range dtb.Extract(data) {
			fmt.Fprintf(c.stdout, "\t%s (%d bytes)\n", b.Name, len(b.Data))
		}
	}

	data := make([]byte, i.Length)
	n, err = f.ReadAt(data, int64(i.Offset))
	if err != nil && err != io.EOF {
		return err
	}
	data = data[:n]

	/* Highlight the signature when it falls inside the dump */
	mark := make([]bool, len(data))
	if magic, off := format.Magic(); magic != "" {
		for j := 0; j < len(magic); j++ {
			if k := off + j - i.Offset; k >= 0 && k < len(mark) {
				mark[k] = true
			}
		}
	}

	fmt.Fprint(c.stdout, hexdump(i.Offset, data, mark))
	return nil
}
