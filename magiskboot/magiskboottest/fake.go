// Package magiskboottest provides a stand-in for the magiskboot binary.
//
// The running test binary doubles as the tool: Install points the child
// environment at it and Main, called first thing from TestMain, turns the
// re-executed process into the fake. Images are zip containers holding one
// member per component, which is enough to observe what unpack/repack did.
// Ramdisk archives use the same container with one member per path.
package magiskboottest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/pierrec/lz4/v4"
)

const (
	envFake = "MAGISKBOOTTEST_FAKE"
	envFail = "MAGISKBOOTTEST_FAIL"
)

// Main runs the fake tool and exits when the process was started by Install.
func Main() {
	if os.Getenv(envFake) == "" {
		return
	}
	os.Exit(run(os.Args[1:], os.Stderr))
}

// Install returns a path that behaves like magiskboot for child processes.
func Install(t testing.TB) string {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("locate test binary: %v", err)
	}
	t.Setenv(envFake, "1")
	return exe
}

// Fail makes the named operation (unpack, repack, decompress, compress, cpio)
// exit non-zero. "repack-silent" exits zero without writing the new image.
func Fail(t testing.TB, op string) {
	t.Helper()
	t.Setenv(envFail, op)
}

// WriteImage writes a fake boot image holding the given components.
func WriteImage(t testing.TB, path string, components map[string][]byte) {
	t.Helper()
	if err := writeImage(path, components); err != nil {
		t.Fatalf("write image %s: %v", path, err)
	}
}

// Cpio returns a fake cpio archive holding entries under their relative paths.
func Cpio(t testing.TB, entries map[string][]byte) []byte {
	t.Helper()
	data, err := pack(entries)
	if err != nil {
		t.Fatalf("pack cpio: %v", err)
	}
	return data
}

// ReadImage returns the components stored in a fake boot image.
func ReadImage(t testing.TB, path string) map[string][]byte {
	t.Helper()
	components, err := readImage(path)
	if err != nil {
		t.Fatalf("read image %s: %v", path, err)
	}
	return components
}

func run(args []string, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: magiskboot <action> [args...]")
		return 1
	}

	action := args[0]
	op := action
	if i := strings.IndexByte(op, '='); i >= 0 {
		op = op[:i]
	}
	if fail := os.Getenv(envFail); fail == op {
		fmt.Fprintf(stderr, "! %s failed (injected)\n", op)
		return 1
	}

	var err error
	switch {
	case action == "unpack" && len(args) == 2:
		err = unpack(args[1])
	case action == "repack" && len(args) == 2:
		if os.Getenv(envFail) == "repack-silent" {
			return 0
		}
		err = repack(args[1])
	case action == "decompress" && len(args) == 3:
		err = decompress(args[1], args[2])
	case strings.HasPrefix(action, "compress=") && len(args) == 3:
		err = compress(strings.TrimPrefix(action, "compress="), args[1], args[2])
	case action == "cpio" && len(args) == 3 && args[2] == "extract":
		err = cpioExtract(args[1])
	default:
		err = fmt.Errorf("unsupported invocation: %v", args)
	}
	if err != nil {
		fmt.Fprintf(stderr, "! %v\n", err)
		return 1
	}
	return 0
}

func unpack(image string) error {
	components, err := readImage(image)
	if err != nil {
		return err
	}
	for name, data := range components {
		if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(name, data, 0644); err != nil {
			return err
		}
	}
	return nil
}

func repack(image string) error {
	components, err := readImage(image)
	if err != nil {
		return err
	}
	for name := range components {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		components[name] = data
	}
	return writeImage("new-boot.img", components)
}

func cpioExtract(archive string) error {
	entries, err := readImage(archive)
	if err != nil {
		return err
	}
	for name, data := range entries {
		if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(name, data, 0644); err != nil {
			return err
		}
	}
	return nil
}

func decompress(src, dst string) error {
	in, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	var r io.Reader
	switch {
	case bytes.HasPrefix(in, []byte{0x1f, 0x8b}):
		gz, err := gzip.NewReader(bytes.NewReader(in))
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	case bytes.HasPrefix(in, []byte{0x02, 0x21, 0x4c, 0x18}), bytes.HasPrefix(in, []byte{0x04, 0x22, 0x4d, 0x18}):
		r = lz4.NewReader(bytes.NewReader(in))
	default:
		return fmt.Errorf("%s: unsupported format", src)
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, out, 0644)
}

func compress(format, src, dst string) error {
	in, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	var w io.WriteCloser
	switch format {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "lz4_legacy":
		lw := lz4.NewWriter(&buf)
		if err := lw.Apply(lz4.LegacyOption(true)); err != nil {
			return err
		}
		w = lw
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	if _, err := w.Write(in); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return os.WriteFile(dst, buf.Bytes(), 0644)
}

func readImage(path string) (map[string][]byte, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%s: not a boot image: %w", path, err)
	}
	defer r.Close()

	components := make(map[string][]byte)
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		components[f.Name] = data
	}
	return components, nil
}

func writeImage(path string, components map[string][]byte) error {
	data, err := pack(components)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func pack(entries map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(filepath.ToSlash(name))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(entries[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
