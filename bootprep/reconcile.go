package bootprep

import (
	"fmt"
	"os"
	"path/filepath"
)

// Reconcile copies every entry of src that does not yet exist in dst. Entries
// are matched by relative path only. Symlinks stay symlinks, modes and the
// directory layout are kept. When dst lies inside src it is left out of the
// walk. It returns the relative paths that were copied.
func Reconcile(src string, dst string) ([]string, error) {
	var copied []string

	src, err := filepath.Abs(src)
	if err != nil {
		return nil, err
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return nil, err
	}

	err = filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, 0755)
		}
		if path == dst {
			return filepath.SkipDir
		}
		target := filepath.Join(dst, rel)

		switch mode := info.Mode(); {
		case mode.IsDir():
			if exists(target) {
				return nil
			}
			if err := os.Mkdir(target, mode.Perm()|0700); err != nil {
				return err
			}

		case exists(target):
			return nil

		case mode&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.Symlink(link, target); err != nil {
				return err
			}

		case mode.IsRegular():
			if err := copyFile(path, target); err != nil {
				return err
			}

		default:
			return nil
		}

		copied = append(copied, rel)
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("reconcile %s: %w", src, err)
	}
	return copied, nil
}
