package bootprep

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// NativeCodec implements the tool's decompress and compress modes in process.
type NativeCodec struct{}

func (NativeCodec) Decompress(ctx context.Context, dir string, src string, dst string) error {
	format, err := DetectFileFormat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	var r io.Reader
	switch format {
	case FormatGzip:
		gz, err := gzip.NewReader(bufio.NewReader(in))
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	case FormatLZ4, FormatLZ4Legacy:
		r = lz4.NewReader(in)
	case FormatZstd:
		zr, err := zstd.NewReader(in)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
	default:
		return fmt.Errorf("%s: cannot decompress %s data", src, format)
	}

	return writeFrom(ctx, dst, r)
}

func (NativeCodec) Compress(ctx context.Context, dir string, format string, src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	var w io.WriteCloser
	switch format {
	case "gzip":
		w, err = gzip.NewWriterLevel(out, gzip.BestCompression)
	case "lz4", "lz4_legacy":
		lw := lz4.NewWriter(out)
		err = lw.Apply(lz4.LegacyOption(format == "lz4_legacy"), lz4.CompressionLevelOption(lz4.Level9))
		w = lw
	case "zstd":
		w, err = zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	default:
		err = fmt.Errorf("unsupported compression format %q", format)
	}
	if err != nil {
		return err
	}

	if _, err := io.Copy(w, contextReader{ctx, in}); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return out.Close()
}

func writeFrom(ctx context.Context, dst string, r io.Reader) error {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, contextReader{ctx, r}); err != nil {
		return err
	}
	return out.Close()
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
