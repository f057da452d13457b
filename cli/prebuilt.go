package main

import (
	"fmt"
	"path/filepath"

	"github.com/anykernel/bootprep/bootprep"
)

type PrebuiltCmd struct {
	Zip   string `optional:"" help:"AnyKernel zip to take the kernel and DTB from." type:"path"`
	Out   string `required:"" help:"Directory to write the prebuilt files to." type:"path"`
	Stock string `optional:"" help:"Stock images to take what the zip lacks from, the rest is copied as is." type:"path"`
}

func (p *PrebuiltCmd) Run(c *Context) error {
	res, err := bootprep.Prebuilt(c.ctx, c.cfg, bootprep.PrebuiltOptions{
		Zip:   p.Zip,
		Out:   p.Out,
		Stock: p.Stock,
	})
	printResult(c, p.Out, res)
	return err
}

func printResult(c *Context, out string, res *bootprep.Result) {
	if res == nil {
		return
	}
	for _, name := range res.Produced {
		fmt.Fprintf(c.stdout, "wrote   %s\n", filepath.Join(out, name))
	}
	for _, name := range res.Reconciled {
		fmt.Fprintf(c.stdout, "copied  %s\n", filepath.Join(out, name))
	}
	for _, name := range res.Skipped {
		fmt.Fprintf(c.stdout, "skipped %s\n", name)
	}
	c.log.Log(bootprep.LogInfo, "%d written, %d copied, %d skipped", len(res.Produced), len(res.Reconciled), len(res.Skipped))
}
