// Package magiskboot drives the external magiskboot binary.
//
// Every operation takes the directory the tool runs in. magiskboot reads and
// writes component files relative to its working directory, so callers keep
// one directory per image and never share it between calls that race.
package magiskboot

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/execabs"
)

// NewBootName is the file repack writes into the working directory.
const NewBootName = "new-boot.img"

type LogFunc func(level int, format string, param ...interface{})

type Tool struct {
	path string

	LogFunc LogFunc
}

func Open(path string) (*Tool, error) {
	if path == "" {
		path = "magiskboot"
	}

	abs, err := execabs.LookPath(path)
	if err != nil {
		return nil, err
	}

	return &Tool{path: abs}, nil
}

func (t *Tool) Path() string {
	return t.path
}

func (t *Tool) logf(level int, format string, param ...interface{}) {
	if t.LogFunc != nil {
		t.LogFunc(level, format, param...)
	}
}

func (t *Tool) run(ctx context.Context, dir string, args ...string) error {
	var out bytes.Buffer

	cmd := execabs.CommandContext(ctx, t.path, args...)
	cmd.Dir = dir
	cmd.Stdout = &out
	cmd.Stderr = &out

	t.logf(2, "magiskboot %v (dir=%s)", args, dir)
	err := cmd.Run()
	if out.Len() > 0 {
		t.logf(2, "%s", bytes.TrimRight(out.Bytes(), "\n"))
	}
	if err == nil {
		return nil
	}

	cerr := &CommandError{
		Args:     append([]string{filepath.Base(t.path)}, args...),
		ExitCode: -1,
		Output:   out.Bytes(),
		Err:      err,
	}
	var exit *execabs.ExitError
	if errors.As(err, &exit) {
		cerr.ExitCode = exit.ExitCode()
	}
	return cerr
}

func (t *Tool) Unpack(ctx context.Context, dir string, image string) error {
	return t.run(ctx, dir, "unpack", image)
}

/* Repack rebuilds image from the component files in dir and returns the path
 * of the new image */
func (t *Tool) Repack(ctx context.Context, dir string, image string) (string, error) {
	if err := t.run(ctx, dir, "repack", image); err != nil {
		return "", err
	}

	out := filepath.Join(dir, NewBootName)
	if _, err := os.Stat(out); err != nil {
		return "", ErrorNoOutput
	}
	return out, nil
}

func (t *Tool) Decompress(ctx context.Context, dir string, src string, dst string) error {
	return t.run(ctx, dir, "decompress", src, dst)
}

func (t *Tool) Compress(ctx context.Context, dir string, format string, src string, dst string) error {
	return t.run(ctx, dir, "compress="+format, src, dst)
}

/* Cpio runs one cpio command (extract, ls, ...) on archive */
func (t *Tool) Cpio(ctx context.Context, dir string, archive string, command string) error {
	return t.run(ctx, dir, "cpio", archive, command)
}
