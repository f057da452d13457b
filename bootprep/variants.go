package bootprep

import (
	"context"
	"fmt"
	"path/filepath"
)

const (
	OutputImage    = "Image"
	OutputImageLZ4 = "Image.lz4"
	OutputImageGz  = "Image.gz"
	OutputDTB      = "dtb.img"
	OutputDTBAlias = "dtb"
)

type variant struct {
	name   string
	format string
	native bool
}

/* Image.gz is always produced in process, Image.lz4 through the codec */
var kernelVariants = []variant{
	{name: OutputImageLZ4, format: "lz4_legacy"},
	{name: OutputImageGz, format: "gzip", native: true},
}

// WriteKernelVariants places the raw kernel as Image and derives the
// compressed variants from it. Under CompressionBestEffort a failed variant
// is logged and skipped; under CompressionStrict it ends the run.
func WriteKernelVariants(ctx context.Context, cfg *Config, out *Output, raw string) error {
	if err := out.Place(raw, OutputImage); err != nil {
		return &StepError{Step: "variants", Err: err}
	}

	for _, v := range kernelVariants {
		codec := cfg.codec()
		if v.native {
			codec = NativeCodec{}
		}

		cfg.logf(LogInfo, "Compressing kernel to %s", v.name)
		err := out.Create(v.name, func(dst string) error {
			return codec.Compress(ctx, filepath.Dir(raw), v.format, raw, dst)
		})
		if err == nil && !nonEmptyFile(out.Path(v.name)) {
			err = fmt.Errorf("no output for %s", v.name)
		}
		if err == nil {
			continue
		}

		if cfg.Compression == CompressionStrict {
			return stepError("compress "+v.name, ErrorCompressionFailure, err)
		}
		cfg.logf(LogWarn, "Skipping %s: %v", v.name, err)
	}
	return nil
}
