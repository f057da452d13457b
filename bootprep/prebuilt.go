package bootprep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/anykernel/bootprep/bootprep/dtb"
)

type PrebuiltOptions struct {
	Zip   string
	Out   string
	Stock string
}

type Result struct {
	Produced   []string
	Reconciled []string
	Skipped    []string
}

// Prebuilt fills Out with prebuilt kernel files: Image and its compressed
// variants, dtb.img, and with Stock set the stock dtbo, the vendor ramdisk
// modules and the rest of the stock directory.
//
// Kernel and DTB come from the zip when it has them and from the stock
// boot.img and vendor_kernel_boot.img otherwise. A zip kernel is also
// repacked into the stock boot.img.
func Prebuilt(ctx context.Context, cfg Config, opts PrebuiltOptions) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if opts.Zip == "" && opts.Stock == "" {
		return nil, fmt.Errorf("%w: --zip or --stock", ErrorMissingArgument)
	}
	if opts.Out == "" {
		return nil, fmt.Errorf("%w: --out", ErrorMissingArgument)
	}
	if opts.Zip != "" {
		if _, err := os.Stat(opts.Zip); err != nil {
			return nil, stepError("archive", ErrorArchiveNotFound, err)
		}
	}
	if opts.Stock != "" {
		if st, err := os.Stat(opts.Stock); err != nil || !st.IsDir() {
			return nil, fmt.Errorf("%w: stock directory %s", ErrorMissingArgument, opts.Stock)
		}
	}

	ws, err := NewWorkspace()
	if err != nil {
		return nil, err
	}
	defer ws.Close()
	cfg.logf(LogDebug, "Workspace: %s", ws.Dir())

	var payloads Payloads
	if opts.Zip != "" {
		if payloads, err = ExtractPayloads(ctx, &cfg, ws, opts.Zip, true); err != nil {
			return nil, err
		}
		if payloads.Kernel == "" {
			return nil, &StepError{Step: "archive", Err: fmt.Errorf("%w: %s", ErrorNoKernelInArchive, filepath.Base(opts.Zip))}
		}
	}

	out, err := NewOutput(opts.Out)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	defer func() { res.Produced = out.Produced() }()

	if opts.Stock != "" {
		if err := prebuiltFromStock(ctx, &cfg, ws, out, opts.Stock, &payloads, res); err != nil {
			return res, err
		}
	}

	if payloads.Kernel != "" {
		if err := WriteKernelVariants(ctx, &cfg, out, payloads.Kernel); err != nil {
			return res, err
		}
	} else {
		cfg.logf(LogWarn, "No kernel found, Image files not written")
	}
	if payloads.DTB != "" {
		if err := writeDTB(&cfg, out, payloads.DTB); err != nil {
			return res, err
		}
	}

	if opts.Stock != "" {
		res.Reconciled, err = Reconcile(opts.Stock, opts.Out)
		if err != nil {
			return res, &StepError{Step: "reconcile", Err: err}
		}
	}
	return res, nil
}

/* prebuiltFromStock fills whatever payloads lacks from the stock images */
func prebuiltFromStock(ctx context.Context, cfg *Config, ws *Workspace, out *Output, stock string, payloads *Payloads, res *Result) error {
	if err := copyDTBO(cfg, out, stock); err != nil {
		return err
	}

	vendorDTB, err := StockVendor(ctx, cfg, ws, out, stock)
	if err := skipMissing(cfg, res, TargetVendorKernelBoot, err); err != nil {
		return err
	}
	if payloads.DTB == "" {
		payloads.DTB = vendorDTB
	}

	if payloads.Kernel != "" {
		err := RepackImage(ctx, cfg, ws, out, stock, TargetBoot, map[ComponentNameType]string{
			TargetBoot.Component: payloads.Kernel,
		})
		return skipMissing(cfg, res, TargetBoot, err)
	}

	payloads.Kernel, err = StockKernel(ctx, cfg, ws, stock)
	return skipMissing(cfg, res, TargetBoot, err)
}

/* writeDTB places dtb.img and dtb and, when configured, the per-board split */
func writeDTB(cfg *Config, out *Output, src string) error {
	for _, name := range []string{OutputDTB, OutputDTBAlias} {
		if err := out.Place(src, name); err != nil {
			return &StepError{Step: "dtb", Err: err}
		}
	}
	if !cfg.SplitDTB {
		return nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return &StepError{Step: "dtb", Err: err}
	}
	blobs := dtb.Extract(data)
	if len(blobs) == 0 {
		cfg.logf(LogWarn, "No device trees found in %s", filepath.Base(src))
		return nil
	}
	for _, b := range blobs {
		err := out.Create(b.Name, func(dst string) error {
			return os.WriteFile(dst, b.Data, 0644)
		})
		if err != nil {
			return &StepError{Step: "dtb", Err: err}
		}
		if !b.Parsed {
			cfg.logf(LogWarn, "Could not parse device tree, wrote %s", b.Name)
		} else {
			cfg.logf(LogInfo, "Extracted %s", b.Name)
		}
	}
	return nil
}
