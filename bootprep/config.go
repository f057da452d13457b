package bootprep

import (
	"context"
	"fmt"
)

type LogFunc func(level int, format string, param ...interface{})

const (
	LogWarn  = 0
	LogInfo  = 1
	LogDebug = 2
)

// Codec turns kernels into and out of their compressed forms. dir is the
// working directory for implementations that write relative to it.
type Codec interface {
	Decompress(ctx context.Context, dir string, src string, dst string) error
	Compress(ctx context.Context, dir string, format string, src string, dst string) error
}

// Tool is the external unpack/repack collaborator.
type Tool interface {
	Codec
	Unpack(ctx context.Context, dir string, image string) error
	Repack(ctx context.Context, dir string, image string) (string, error)
	Cpio(ctx context.Context, dir string, archive string, command string) error
}

type CompressionPolicy string

const (
	CompressionBestEffort CompressionPolicy = "best-effort"
	CompressionStrict     CompressionPolicy = "strict"
)

type Target struct {
	Image     string
	Component ComponentNameType
}

var (
	TargetBoot             = Target{Image: "boot.img", Component: ComponentKernel}
	TargetVendorKernelBoot = Target{Image: "vendor_kernel_boot.img", Component: ComponentDTB}
)

type Config struct {
	Tool  Tool
	Codec Codec

	KernelNames []string
	DTBNames    []string

	MaxArchiveSize int64
	Compression    CompressionPolicy
	SplitDTB       bool

	LogFunc LogFunc
}

func DefaultConfig() Config {
	return Config{
		KernelNames:    []string{"Image.lz4", "Image.gz", "Image"},
		DTBNames:       []string{"dtb", "dtb.img"},
		MaxArchiveSize: 2 << 30,
		Compression:    CompressionBestEffort,
	}
}

func (c *Config) codec() Codec {
	if c.Codec != nil {
		return c.Codec
	}
	return c.Tool
}

func (c *Config) logf(level int, format string, param ...interface{}) {
	if c.LogFunc != nil {
		c.LogFunc(level, format, param...)
	}
}

func (c *Config) validate() error {
	if c.Tool == nil {
		return ErrorMissingDependency
	}
	if len(c.KernelNames) == 0 {
		return fmt.Errorf("%w: kernel candidate names", ErrorMissingArgument)
	}
	switch c.Compression {
	case CompressionBestEffort, CompressionStrict:
	case "":
		c.Compression = CompressionBestEffort
	default:
		return fmt.Errorf("unknown compression policy %q", c.Compression)
	}
	return nil
}
