package main

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/c2h5oh/datasize"
)

/* sizeMapper decodes byte sizes such as 512MB or 2GiB, powers of 1024 */
type sizeMapper struct{}

func (sizeMapper) Decode(ctx *kong.DecodeContext, target reflect.Value) error {
	var value string
	err := ctx.Scan.PopValueInto("size", &value)
	if err != nil {
		return err
	}
	size, err := datasize.ParseString(strings.Replace(value, "iB", "B", 1))
	if err != nil {
		return err
	}
	target.SetInt(int64(size.Bytes()))
	return nil
}

/* intMapper accepts decimal, 0x hex and 0 octal */
type intMapper struct {
	base int
}

func (h intMapper) Decode(ctx *kong.DecodeContext, target reflect.Value) error {
	var value string
	err := ctx.Scan.PopValueInto("int", &value)
	if err != nil {
		return err
	}
	i, err := strconv.ParseInt(value, h.base, 64)
	if err != nil {
		return err
	}
	target.SetInt(i)
	return nil
}
