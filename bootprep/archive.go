package bootprep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/zip"
	"github.com/samber/lo"
)

// Payloads are the substitution inputs resolved for one run. Empty fields
// were not found.
type Payloads struct {
	Kernel       string
	KernelSource string
	DTB          string
	DTBSource    string
}

func (p Payloads) Empty() bool {
	return p.Kernel == "" && p.DTB == ""
}

// ExtractArchive unpacks the zip at path into dest, refusing members that
// escape dest and stopping once more than maxBytes have been written. A
// maxBytes of zero disables the limit.
func ExtractArchive(ctx context.Context, path string, dest string, maxBytes int64) (int64, error) {
	/* Member names are vetted one by one below */
	r, err := zip.OpenReader(path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return 0, err
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return 0, err
	}

	var extracted int64
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return extracted, err
		}

		target, err := memberPath(dest, f.Name)
		if err != nil {
			return extracted, err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return extracted, err
			}
			continue
		}
		if !f.Mode().IsRegular() {
			/* Symlinks and devices have no place in a kernel zip */
			continue
		}

		if maxBytes > 0 && extracted+int64(f.UncompressedSize64) > maxBytes {
			return extracted, fmt.Errorf("%w: would exceed %d bytes", ErrorArchiveTooLarge, maxBytes)
		}

		remaining := int64(-1)
		if maxBytes > 0 {
			remaining = maxBytes - extracted
		}
		n, err := extractMember(f, target, remaining)
		extracted += n
		if err != nil {
			return extracted, err
		}
	}
	return extracted, nil
}

func memberPath(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrorInvalidArchivePath, name)
	}
	return securejoin.SecureJoin(dest, clean)
}

func extractMember(f *zip.File, target string, remaining int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	var src io.Reader = rc
	if remaining >= 0 {
		src = io.LimitReader(rc, remaining+1)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", f.Name, err)
	}
	if remaining >= 0 && n > remaining {
		return n, fmt.Errorf("%w: member %s is larger than declared", ErrorArchiveTooLarge, f.Name)
	}
	return n, out.Close()
}

// FindCandidate returns the file under root whose base name comes first in
// names. Ties on one name go to the shallowest path, then lexical order.
func FindCandidate(root string, names []string) (string, error) {
	var matches []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() && lo.Contains(names, info.Name()) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil || len(matches) == 0 {
		return "", err
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		ra, rb := lo.IndexOf(names, filepath.Base(a)), lo.IndexOf(names, filepath.Base(b))
		if ra != rb {
			return ra < rb
		}
		da, db := strings.Count(a, string(filepath.Separator)), strings.Count(b, string(filepath.Separator))
		if da != db {
			return da < db
		}
		return a < b
	})
	return matches[0], nil
}

// ExtractPayloads unpacks an AnyKernel zip into the workspace and resolves
// the kernel (canonicalised to raw form) and DTB it carries. The kernel
// search is skipped when withKernel is false.
func ExtractPayloads(ctx context.Context, cfg *Config, ws *Workspace, zipPath string, withKernel bool) (Payloads, error) {
	var p Payloads

	if _, err := os.Stat(zipPath); err != nil {
		return p, stepError("archive", ErrorArchiveNotFound, fmt.Errorf("%s: %w", zipPath, err))
	}

	dir, err := ws.Mkdir("archive")
	if err != nil {
		return p, err
	}
	n, err := ExtractArchive(ctx, zipPath, dir, cfg.MaxArchiveSize)
	if err != nil {
		return p, &StepError{Step: "archive", Err: err}
	}
	cfg.logf(LogDebug, "Extracted %d bytes from %s", n, zipPath)

	var kernel string
	if withKernel {
		if kernel, err = FindCandidate(dir, cfg.KernelNames); err != nil {
			return p, &StepError{Step: "archive", Err: err}
		}
	}
	if kernel != "" {
		rel, _ := filepath.Rel(dir, kernel)
		cfg.logf(LogInfo, "Found kernel in archive: %s", rel)
		p.KernelSource = rel
		if p.Kernel, err = canonicalKernel(ctx, cfg, ws, kernel); err != nil {
			return p, err
		}
	} else if withKernel {
		cfg.logf(LogWarn, "No kernel found in archive (looked for %s)", strings.Join(cfg.KernelNames, ", "))
	}

	dtb, err := FindCandidate(dir, cfg.DTBNames)
	if err != nil {
		return p, &StepError{Step: "archive", Err: err}
	}
	if dtb != "" {
		rel, _ := filepath.Rel(dir, dtb)
		cfg.logf(LogInfo, "Found DTB in archive: %s", rel)
		p.DTB = dtb
		p.DTBSource = rel
	} else {
		cfg.logf(LogWarn, "No DTB found in archive")
	}

	return p, nil
}
