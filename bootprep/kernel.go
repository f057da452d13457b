package bootprep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const canonicalKernelPath = "payload/kernel"

// ResolveImage canonicalises an explicitly supplied kernel file.
func ResolveImage(ctx context.Context, cfg *Config, ws *Workspace, path string) (string, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return "", stepError("kernel", ErrorImageNotFound, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return "", stepError("kernel", ErrorImageNotFound, fmt.Errorf("%s: %w", path, err))
	}
	if st.IsDir() {
		return "", stepError("kernel", ErrorImageNotFound, fmt.Errorf("%s is a directory", path))
	}
	return canonicalKernel(ctx, cfg, ws, path)
}

/* canonicalKernel writes the raw form of src to the workspace payload path */
func canonicalKernel(ctx context.Context, cfg *Config, ws *Workspace, src string) (string, error) {
	dir, err := ws.Mkdir(filepath.Dir(canonicalKernelPath))
	if err != nil {
		return "", err
	}
	dst := ws.Path(canonicalKernelPath)

	format, err := DetectFileFormat(src)
	if err != nil {
		return "", &StepError{Step: "kernel", Err: err}
	}

	ext := strings.ToLower(filepath.Ext(src))
	if !format.Compressed() && ext != ".lz4" && ext != ".gz" {
		cfg.logf(LogInfo, "Kernel %s is %s, using as is", filepath.Base(src), format)
		if err := copyFile(src, dst); err != nil {
			return "", &StepError{Step: "kernel", Err: err}
		}
		return dst, nil
	}

	cfg.logf(LogInfo, "Decompressing %s (%s)", filepath.Base(src), format)
	if err := cfg.codec().Decompress(ctx, dir, src, dst); err != nil {
		return "", stepError("decompress", ErrorDecompressionFailure, err)
	}
	if !nonEmptyFile(dst) {
		return "", stepError("decompress", ErrorDecompressionFailure, fmt.Errorf("no output for %s", filepath.Base(src)))
	}
	return dst, nil
}
