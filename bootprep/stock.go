package bootprep

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	OutputDTBO              = "dtbo.img"
	OutputDTBOAlias         = "dtbo"
	OutputModulesLoad       = "modules.load"
	OutputVendorModulesLoad = "vendor_kernel_boot.modules.load"
	OutputVendorBlocklist   = "vendor_kernel_boot.modules.blocklist"
)

/* Modules under a path containing this belong to the 16k page size kernel */
const skipModulesMarker = "16k-mode"

// StockKernel unpacks stockDir/boot.img and returns its kernel in raw form,
// or "" when the image has no kernel component.
func StockKernel(ctx context.Context, cfg *Config, ws *Workspace, stockDir string) (string, error) {
	stage, err := unpackStock(ctx, cfg, ws, stockDir, TargetBoot)
	if err != nil {
		return "", err
	}

	kernel, ok := stage.Components[ComponentKernel]
	if !ok {
		cfg.logf(LogWarn, "%s has no kernel component", TargetBoot.Image)
		return "", nil
	}
	cfg.logf(LogInfo, "Using kernel from stock %s", TargetBoot.Image)
	return canonicalKernel(ctx, cfg, ws, kernel)
}

// StockVendor unpacks stockDir/vendor_kernel_boot.img, copies the kernel
// modules and their lists from its ramdisk to out and returns the image's
// dtb component, or "" when it has none.
func StockVendor(ctx context.Context, cfg *Config, ws *Workspace, out *Output, stockDir string) (string, error) {
	stage, err := unpackStock(ctx, cfg, ws, stockDir, TargetVendorKernelBoot)
	if err != nil {
		return "", err
	}

	if err := writeModules(ctx, cfg, out, stage); err != nil {
		return "", err
	}

	dtb, ok := stage.Components[ComponentDTB]
	if !ok {
		cfg.logf(LogWarn, "%s has no dtb component", TargetVendorKernelBoot.Image)
		return "", nil
	}
	return dtb, nil
}

/* findRamdisk prefers ramdisk.cpio, then the first *.cpio anywhere in the stage */
func findRamdisk(stage *Stage) (string, error) {
	if p, ok := stage.Components[ComponentRamdisk]; ok {
		return p, nil
	}

	var found []string
	err := filepath.Walk(stage.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() && filepath.Ext(path) == ".cpio" {
			found = append(found, path)
		}
		return nil
	})
	if err != nil || len(found) == 0 {
		return "", err
	}
	sort.Strings(found)
	return found[0], nil
}

func writeModules(ctx context.Context, cfg *Config, out *Output, stage *Stage) error {
	const step = "modules"

	ramdisk, err := findRamdisk(stage)
	if err != nil {
		return &StepError{Step: step, Err: err}
	}
	if ramdisk == "" {
		cfg.logf(LogWarn, "No ramdisk in %s, no modules collected", stage.Image)
		return nil
	}

	root := filepath.Join(stage.Dir, "ramdisk_root")
	if err := os.MkdirAll(root, 0755); err != nil {
		return &StepError{Step: step, Err: err}
	}
	cfg.logf(LogInfo, "Extracting %s", filepath.Base(ramdisk))
	if err := cfg.Tool.Cpio(ctx, root, ramdisk, "extract"); err != nil {
		return stepError(step, ErrorUnpackFailure, err)
	}

	var modules []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() && filepath.Ext(path) == ".ko" && !strings.Contains(path[len(root):], skipModulesMarker) {
			modules = append(modules, path)
		}
		return nil
	})
	if err != nil {
		return &StepError{Step: step, Err: err}
	}

	copied := 0
	for _, m := range modules {
		err := out.Place(m, filepath.Base(m))
		if errors.Is(err, ErrorAlreadyProduced) {
			cfg.logf(LogWarn, "Module %s found twice, keeping the first", filepath.Base(m))
			continue
		}
		if err != nil {
			return &StepError{Step: step, Err: err}
		}
		copied++
	}
	if copied == 0 {
		cfg.logf(LogWarn, "No kernel modules found in %s", filepath.Base(ramdisk))
	} else {
		cfg.logf(LogInfo, "Copied %d kernel modules", copied)
	}

	load, err := FindCandidate(root, []string{"modules.load"})
	if err != nil {
		return &StepError{Step: step, Err: err}
	}
	if load != "" {
		for _, name := range []string{OutputModulesLoad, OutputVendorModulesLoad} {
			if err := out.Place(load, name); err != nil {
				return &StepError{Step: step, Err: err}
			}
		}
	} else {
		cfg.logf(LogWarn, "No modules.load in %s", filepath.Base(ramdisk))
	}

	blocklist, err := FindCandidate(root, []string{"modules.blocklist"})
	if err != nil {
		return &StepError{Step: step, Err: err}
	}
	if blocklist != "" {
		err = out.Place(blocklist, OutputVendorBlocklist)
	} else {
		cfg.logf(LogWarn, "No modules.blocklist in %s, writing an empty one", filepath.Base(ramdisk))
		err = out.Create(OutputVendorBlocklist, func(dst string) error {
			return os.WriteFile(dst, nil, 0644)
		})
	}
	if err != nil {
		return &StepError{Step: step, Err: err}
	}
	return nil
}

/* copyDTBO places the stock dtbo.img under both of its conventional names */
func copyDTBO(cfg *Config, out *Output, stockDir string) error {
	src := filepath.Join(stockDir, OutputDTBO)
	if !nonEmptyFile(src) {
		cfg.logf(LogWarn, "No %s in %s", OutputDTBO, stockDir)
		return nil
	}
	for _, name := range []string{OutputDTBO, OutputDTBOAlias} {
		if err := out.Place(src, name); err != nil {
			return &StepError{Step: "dtbo", Err: err}
		}
	}
	return nil
}
