package bootprep

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type ComponentNameType string

const (
	ComponentKernel    ComponentNameType = "kernel"
	ComponentKernelDTB ComponentNameType = "kernel_dtb"
	ComponentDTB       ComponentNameType = "dtb"
	ComponentRamdisk   ComponentNameType = "ramdisk.cpio"
	ComponentSecond    ComponentNameType = "second"
	ComponentExtra     ComponentNameType = "extra"
	ComponentRecDTBO   ComponentNameType = "recovery_dtbo"
	ComponentBootConf  ComponentNameType = "bootconfig"
	ComponentHeader    ComponentNameType = "header"
)

var knownComponents = []ComponentNameType{
	ComponentKernel,
	ComponentKernelDTB,
	ComponentDTB,
	ComponentRamdisk,
	ComponentSecond,
	ComponentExtra,
	ComponentRecDTBO,
	ComponentBootConf,
	ComponentHeader,
}

// Workspace is the temporary directory owned by a single run. Close removes
// it along with every stage created inside.
type Workspace struct {
	dir string
}

func NewWorkspace() (*Workspace, error) {
	dir, err := os.MkdirTemp("", "bootprep_*")
	if err != nil {
		return nil, err
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string {
	return w.dir
}

func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

func (w *Workspace) Mkdir(name string) (string, error) {
	dir := w.Path(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

func (w *Workspace) Stage(name string) (*Stage, error) {
	dir, err := w.Mkdir("stage_" + name)
	if err != nil {
		return nil, err
	}
	return &Stage{
		Dir:        dir,
		Components: make(map[ComponentNameType]string),
	}, nil
}

func (w *Workspace) Close() error {
	if w.dir == "" {
		return nil
	}
	err := os.RemoveAll(w.dir)
	w.dir = ""
	return err
}

// Stage is the working directory of one unpack/repack cycle. Components maps
// each component the tool extracted to its file.
type Stage struct {
	Dir        string
	Image      string
	Components map[ComponentNameType]string
}

func (s *Stage) Path(c ComponentNameType) string {
	if p, ok := s.Components[c]; ok {
		return p
	}
	return filepath.Join(s.Dir, string(c))
}

/* scan records which known component files the tool left in the stage */
func (s *Stage) scan() {
	for _, c := range knownComponents {
		p := filepath.Join(s.Dir, string(c))
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			s.Components[c] = p
		}
	}
}

func (s *Stage) substitute(c ComponentNameType, src string) error {
	if err := copyFile(src, s.Path(c)); err != nil {
		return fmt.Errorf("substitute %s: %w", c, err)
	}
	s.Components[c] = s.Path(c)
	return nil
}

func (s *Stage) componentNames() []string {
	names := make([]string, 0, len(s.Components))
	for c := range s.Components {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return names
}
