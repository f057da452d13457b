// Package dtb splits concatenated flattened device trees and names each one
// after the board it describes.
package dtb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/u-root/u-root/pkg/dt"
)

var magic = []byte{0xd0, 0x0d, 0xfe, 0xed}

const headerLen = 40

var ErrorNotDTB = errors.New("Not a device tree blob")

type Blob struct {
	Name   string
	Data   []byte
	Parsed bool
}

// Split cuts data at every FDT magic. A chunk runs to the next magic or the
// end of data and is trimmed to the size its header declares.
func Split(data []byte) [][]byte {
	var offsets []int
	for off := 0; ; {
		i := bytes.Index(data[off:], magic)
		if i < 0 {
			break
		}
		offsets = append(offsets, off+i)
		off += i + 1
	}

	chunks := make([][]byte, 0, len(offsets))
	for n, start := range offsets {
		end := len(data)
		if n+1 < len(offsets) {
			end = offsets[n+1]
		}
		chunk := data[start:end]
		if size := totalSize(chunk); size >= headerLen && size <= len(chunk) {
			chunk = chunk[:size]
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func totalSize(chunk []byte) int {
	if len(chunk) < 8 {
		return 0
	}
	return int(binary.BigEndian.Uint32(chunk[4:]))
}

func Check(blob []byte) error {
	if len(blob) < headerLen || !bytes.HasPrefix(blob, magic) {
		return ErrorNotDTB
	}
	if size := totalSize(blob); size < headerLen || size > len(blob) {
		return fmt.Errorf("%w: total size %d, have %d bytes", ErrorNotDTB, size, len(blob))
	}
	return nil
}

// Name builds "<soc>-<rev>-<variant>.dtb" from the root compatible string and
// the first description property in the tree.
func Name(blob []byte) (string, error) {
	if err := Check(blob); err != nil {
		return "", err
	}
	fdt, err := dt.ReadFDT(bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrorNotDTB, err)
	}
	if fdt.RootNode == nil {
		return "", ErrorNotDTB
	}

	soc := "unknown"
	if compat, ok := lookup(fdt.RootNode, "compatible"); ok && len(compat) > 0 {
		fields := strings.Split(compat[0], ",")
		if len(fields) > 1 {
			soc = strings.TrimSpace(fields[1])
		} else {
			soc = strings.TrimSpace(fields[0])
		}
	}

	rev, variant := "unk", "unk"
	if desc, ok := findDescription(fdt.RootNode); ok {
		fields := strings.Split(desc, ",")
		rev = strings.ToLower(strings.TrimSpace(fields[0]))
		if len(fields) > 1 {
			variant = strings.ToLower(strings.TrimSpace(fields[1]))
		}
	}

	return fmt.Sprintf("%s-%s-%s.dtb", soc, rev, variant), nil
}

func lookup(n *dt.Node, name string) ([]string, bool) {
	for _, p := range n.Properties {
		if p.Name == name {
			return stringList(p.Value), true
		}
	}
	return nil, false
}

func findDescription(n *dt.Node) (string, bool) {
	if desc, ok := lookup(n, "description"); ok && len(desc) > 0 {
		return desc[0], true
	}
	for _, child := range n.Children {
		if desc, ok := findDescription(child); ok {
			return desc, true
		}
	}
	return "", false
}

func stringList(v []byte) []string {
	v = bytes.TrimRight(v, "\x00")
	if len(v) == 0 {
		return nil
	}
	return strings.Split(string(v), "\x00")
}

// Extract splits data and names every blob. Repeated names get a numeric
// suffix; blobs that do not parse are called unknown_NN.dtb.
func Extract(data []byte) []Blob {
	chunks := Split(data)
	blobs := make([]Blob, 0, len(chunks))
	used := make(map[string]int)

	for i, chunk := range chunks {
		name, err := Name(chunk)
		if err != nil {
			blobs = append(blobs, Blob{Name: fmt.Sprintf("unknown_%02d.dtb", i), Data: chunk})
			continue
		}

		if n, ok := used[name]; ok {
			used[name] = n + 1
			ext := filepath.Ext(name)
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n+1, ext)
		} else {
			used[name] = 0
		}
		blobs = append(blobs, Blob{Name: name, Data: chunk, Parsed: true})
	}
	return blobs
}
