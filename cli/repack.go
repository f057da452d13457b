package main

import (
	"github.com/anykernel/bootprep/bootprep"
)

type RepackCmd struct {
	Input string `required:"" help:"Factory image directory holding boot.img and vendor_kernel_boot.img." type:"path"`
	Out   string `required:"" help:"Directory to write the repacked images to." type:"path"`
	Zip   string `optional:"" help:"AnyKernel zip providing the kernel and DTB." type:"path"`
	Image string `optional:"" name:"Image" help:"Kernel image to use instead of the one in the zip." type:"path"`
}

func (r *RepackCmd) Run(c *Context) error {
	res, err := bootprep.RepackInPlace(c.ctx, c.cfg, bootprep.RepackOptions{
		Input: r.Input,
		Out:   r.Out,
		Zip:   r.Zip,
		Image: r.Image,
	})
	printResult(c, r.Out, res)
	return err
}
