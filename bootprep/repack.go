package bootprep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RepackImage substitutes payload components into the stock image
// stockDir/target.Image and writes the result to out under the same name.
// A missing stock image is reported as ErrorMissingStockImage and leaves
// everything untouched.
func RepackImage(ctx context.Context, cfg *Config, ws *Workspace, out *Output, stockDir string, target Target, payload map[ComponentNameType]string) error {
	stage, err := unpackStock(ctx, cfg, ws, stockDir, target)
	if err != nil {
		return err
	}

	step := "repack " + target.Image
	for c, src := range payload {
		if _, ok := stage.Components[c]; !ok {
			cfg.logf(LogWarn, "%s has no %s component, adding one", target.Image, c)
		}
		cfg.logf(LogInfo, "Replacing %s in %s", c, target.Image)
		if err := stage.substitute(c, src); err != nil {
			return &StepError{Step: step, Err: err}
		}
	}

	cfg.logf(LogInfo, "Repacking %s", target.Image)
	produced, err := cfg.Tool.Repack(ctx, stage.Dir, stage.Image)
	if err != nil {
		return stepError(step, ErrorRepackFailure, err)
	}
	if !nonEmptyFile(produced) {
		return stepError(step, ErrorRepackFailure, fmt.Errorf("no output in %s", stage.Dir))
	}

	if err := out.Place(produced, target.Image); err != nil {
		return &StepError{Step: step, Err: err}
	}
	cfg.logf(LogInfo, "Wrote %s", out.Path(target.Image))
	return nil
}

/* unpackStock stages a copy of stockDir/target.Image and unpacks it there */
func unpackStock(ctx context.Context, cfg *Config, ws *Workspace, stockDir string, target Target) (*Stage, error) {
	stock := filepath.Join(stockDir, target.Image)
	if st, err := os.Stat(stock); err != nil || !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrorMissingStockImage, stock)
	}

	step := "unpack " + target.Image
	stage, err := ws.Stage(strings.TrimSuffix(target.Image, filepath.Ext(target.Image)))
	if err != nil {
		return nil, &StepError{Step: step, Err: err}
	}
	stage.Image = target.Image

	/* The tool only ever sees the staged copy */
	if err := copyFile(stock, filepath.Join(stage.Dir, stage.Image)); err != nil {
		return nil, &StepError{Step: step, Err: err}
	}

	cfg.logf(LogInfo, "Unpacking %s", target.Image)
	if err := cfg.Tool.Unpack(ctx, stage.Dir, stage.Image); err != nil {
		return nil, stepError(step, ErrorUnpackFailure, err)
	}
	stage.scan()
	cfg.logf(LogDebug, "Components of %s: %s", target.Image, strings.Join(stage.componentNames(), ", "))
	return stage, nil
}
