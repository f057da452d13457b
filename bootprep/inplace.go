package bootprep

import (
	"context"
	"errors"
	"fmt"
	"os"
)

type RepackOptions struct {
	Input string
	Out   string
	Zip   string
	Image string
}

// RepackInPlace substitutes a kernel into Input/boot.img and a DTB into
// Input/vendor_kernel_boot.img, writes the results to Out and then copies the
// rest of Input alongside. Resolving neither payload is a no-op: nothing is
// created and the returned Result is empty.
func RepackInPlace(ctx context.Context, cfg Config, opts RepackOptions) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if opts.Input == "" {
		return nil, fmt.Errorf("%w: --input", ErrorMissingArgument)
	}
	if opts.Out == "" {
		return nil, fmt.Errorf("%w: --out", ErrorMissingArgument)
	}
	if st, err := os.Stat(opts.Input); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: input directory %s", ErrorMissingArgument, opts.Input)
	}

	res := &Result{}
	if opts.Zip == "" && opts.Image == "" {
		cfg.logf(LogInfo, "Neither --zip nor --Image given, nothing to do")
		return res, nil
	}

	ws, err := NewWorkspace()
	if err != nil {
		return nil, err
	}
	defer ws.Close()
	cfg.logf(LogDebug, "Workspace: %s", ws.Dir())

	var payloads Payloads
	if opts.Zip != "" {
		if payloads, err = ExtractPayloads(ctx, &cfg, ws, opts.Zip, opts.Image == ""); err != nil {
			return nil, err
		}
	}
	if opts.Image != "" {
		if payloads.Kernel, err = ResolveImage(ctx, &cfg, ws, opts.Image); err != nil {
			return nil, err
		}
		payloads.KernelSource = opts.Image
	}
	if payloads.Empty() {
		cfg.logf(LogInfo, "No kernel or DTB resolved, nothing to do")
		return res, nil
	}

	out, err := NewOutput(opts.Out)
	if err != nil {
		return nil, err
	}
	defer func() { res.Produced = out.Produced() }()

	if payloads.Kernel != "" {
		err := RepackImage(ctx, &cfg, ws, out, opts.Input, TargetBoot, map[ComponentNameType]string{
			TargetBoot.Component: payloads.Kernel,
		})
		if err := skipMissing(&cfg, res, TargetBoot, err); err != nil {
			return res, err
		}
		if err := WriteKernelVariants(ctx, &cfg, out, payloads.Kernel); err != nil {
			return res, err
		}
	}

	if payloads.DTB != "" {
		err := RepackImage(ctx, &cfg, ws, out, opts.Input, TargetVendorKernelBoot, map[ComponentNameType]string{
			TargetVendorKernelBoot.Component: payloads.DTB,
		})
		if err := skipMissing(&cfg, res, TargetVendorKernelBoot, err); err != nil {
			return res, err
		}
		if err := writeDTB(&cfg, out, payloads.DTB); err != nil {
			return res, err
		}
	}

	res.Reconciled, err = Reconcile(opts.Input, opts.Out)
	if err != nil {
		return res, &StepError{Step: "reconcile", Err: err}
	}
	return res, nil
}

func skipMissing(cfg *Config, res *Result, target Target, err error) error {
	if !errors.Is(err, ErrorMissingStockImage) {
		return err
	}
	cfg.logf(LogWarn, "%s not found in input, skipping %s substitution", target.Image, target.Component)
	res.Skipped = append(res.Skipped, target.Image)
	return nil
}
