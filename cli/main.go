package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/anykernel/bootprep/bootprep"
	"github.com/anykernel/bootprep/magiskboot"
)

type Context struct {
	ctx    context.Context
	cfg    bootprep.Config
	stdout io.Writer
	log    *logger
}

type CLI struct {
	Magiskboot     string          `help:"Name or path of the magiskboot binary." default:"magiskboot" env:"MAGISKBOOT"`
	Codec          string          `help:"Who compresses and decompresses kernels (tool, native)." enum:"tool,native" default:"tool"`
	Compression    string          `help:"What a failed compressed variant does to the run (best-effort, strict)." enum:"best-effort,strict" default:"best-effort"`
	KernelNames    []string        `help:"Kernel file names to look for in the archive, best first." default:"Image.lz4,Image.gz,Image"`
	DTBNames       []string        `name:"dtb-names" help:"DTB file names to look for in the archive, best first." default:"dtb,dtb.img"`
	MaxArchiveSize int64           `type:"size" help:"Refuse archives that unpack to more than this." default:"2GB"`
	SplitDTB       bool            `name:"split-dtb" help:"Also write one file per device tree found in the DTB."`
	LogLevel       int             `optional:"" help:"Higher values give more output." default:"1"`
	Config         kong.ConfigFlag `optional:"" help:"Read flag values from this JSON file." type:"path"`

	Prebuilt    PrebuiltCmd    `cmd:"" help:"Produce prebuilt kernel files from an AnyKernel zip."`
	Repack      RepackCmd      `cmd:"" help:"Repack boot.img and vendor_kernel_boot.img from a factory directory."`
	ListArchive ListArchiveCmd `cmd:"" name:"list-archive" help:"Show which archive members would be used."`
	Inspect     InspectCmd     `cmd:"" help:"Detect the format of a file and dump its header."`
}

func (c *CLI) config(log *logger) bootprep.Config {
	cfg := bootprep.DefaultConfig()
	cfg.KernelNames = c.KernelNames
	cfg.DTBNames = c.DTBNames
	cfg.MaxArchiveSize = c.MaxArchiveSize
	cfg.Compression = bootprep.CompressionPolicy(c.Compression)
	cfg.SplitDTB = c.SplitDTB
	cfg.LogFunc = log.Log
	if c.Codec == "native" {
		cfg.Codec = bootprep.NativeCodec{}
	}
	return cfg
}

/* needsTool lists the commands that drive magiskboot */
func needsTool(command string) bool {
	return command == "prebuilt" || command == "repack"
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	var cli CLI
	k, err := kong.New(&cli,
		kong.Name("bootprep"),
		kong.Description("Prepare Android boot images from AnyKernel zips."),
		kong.Writers(stdout, stderr),
		kong.NamedMapper("size", sizeMapper{}),
		kong.NamedMapper("int", intMapper{}),
		kong.Configuration(kong.JSON, "~/.config/bootprep.json"))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	kctx, err := k.Parse(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	log := newLogger(stderr, cli.LogLevel)
	c := &Context{
		ctx:    ctx,
		cfg:    cli.config(log),
		stdout: stdout,
		log:    log,
	}

	if needsTool(kctx.Command()) {
		tool, err := magiskboot.Open(cli.Magiskboot)
		if err != nil {
			log.Error(fmt.Errorf("%w: %s: %v", bootprep.ErrorMissingDependency, cli.Magiskboot, err))
			return 1
		}
		tool.LogFunc = magiskboot.LogFunc(log.Log)
		log.Log(bootprep.LogDebug, "Using %s", tool.Path())
		c.cfg.Tool = tool
	}

	if err := kctx.Run(c); err != nil {
		log.Error(err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
