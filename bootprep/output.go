package bootprep

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/lo"
)

// Output tracks what a run has written to the output directory. Each name is
// produced at most once per run.
type Output struct {
	Dir string

	produced map[string]struct{}
}

func NewOutput(dir string) (*Output, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Output{
		Dir:      dir,
		produced: make(map[string]struct{}),
	}, nil
}

func (o *Output) Path(name string) string {
	return filepath.Join(o.Dir, name)
}

/* Create hands the destination path to fn and records name once fn succeeds */
func (o *Output) Create(name string, fn func(path string) error) error {
	if _, ok := o.produced[name]; ok {
		return fmt.Errorf("%w: %s", ErrorAlreadyProduced, name)
	}
	if err := fn(o.Path(name)); err != nil {
		return err
	}
	o.produced[name] = struct{}{}
	return nil
}

func (o *Output) Place(src string, name string) error {
	return o.Create(name, func(dst string) error {
		return copyFile(src, dst)
	})
}

func (o *Output) Produced() []string {
	names := lo.Keys(o.produced)
	sort.Strings(names)
	return names
}
