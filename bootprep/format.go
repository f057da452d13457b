package bootprep

import (
	"bytes"
	"io"
	"os"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatAndroidBoot
	FormatVendorBoot
	FormatGzip
	FormatXZ
	FormatLZMA
	FormatBzip2
	FormatLZ4
	FormatLZ4Legacy
	FormatZstd
	FormatDTB
	FormatARM64Image
	FormatZImage
)

const (
	magicBoot       = "ANDROID!"
	magicVendorBoot = "VNDRBOOT"
	magicGzip1      = "\x1f\x8b"
	magicGzip2      = "\x1f\x9e"
	magicXZ         = "\xfd7zXZ"
	magicBzip2      = "BZh"
	magicLZ4Legacy  = "\x02\x21\x4c\x18"
	magicLZ41       = "\x03\x21\x4c\x18"
	magicLZ42       = "\x04\x22\x4d\x18"
	magicZstd       = "\x28\xb5\x2f\xfd"
	magicDTB        = "\xd0\x0d\xfe\xed"
	magicARM64      = "ARM\x64"
	magicZImage     = "\x18\x28\x6f\x01"

	offsetARM64  = 0x38
	offsetZImage = 0x24
)

// detectLen is how much of a file DetectFormat needs to see.
const detectLen = 64

func DetectFormat(buf []byte) Format {
	match := func(magic string, off int) bool {
		return len(buf) >= off+len(magic) && bytes.Equal(buf[off:off+len(magic)], []byte(magic))
	}

	switch {
	case match(magicBoot, 0):
		return FormatAndroidBoot
	case match(magicVendorBoot, 0):
		return FormatVendorBoot
	case match(magicGzip1, 0), match(magicGzip2, 0):
		return FormatGzip
	case match(magicXZ, 0):
		return FormatXZ
	case len(buf) >= 13 && match("\x5d\x00\x00", 0) && (buf[12] == 0xff || buf[12] == 0x00):
		return FormatLZMA
	case match(magicBzip2, 0):
		return FormatBzip2
	case match(magicLZ41, 0), match(magicLZ42, 0):
		return FormatLZ4
	case match(magicLZ4Legacy, 0):
		return FormatLZ4Legacy
	case match(magicZstd, 0):
		return FormatZstd
	case match(magicDTB, 0):
		return FormatDTB
	case match(magicARM64, offsetARM64):
		return FormatARM64Image
	case match(magicZImage, offsetZImage):
		return FormatZImage
	}
	return FormatUnknown
}

func DetectFileFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	buf := make([]byte, detectLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FormatUnknown, err
	}
	return DetectFormat(buf[:n]), nil
}

func (f Format) Compressed() bool {
	return f >= FormatGzip && f <= FormatZstd
}

/* Magic returns the signature bytes and their offset */
func (f Format) Magic() (string, int) {
	switch f {
	case FormatAndroidBoot:
		return magicBoot, 0
	case FormatVendorBoot:
		return magicVendorBoot, 0
	case FormatGzip:
		return magicGzip1, 0
	case FormatXZ:
		return magicXZ, 0
	case FormatLZMA:
		return "\x5d\x00\x00", 0
	case FormatBzip2:
		return magicBzip2, 0
	case FormatLZ4:
		return magicLZ42, 0
	case FormatLZ4Legacy:
		return magicLZ4Legacy, 0
	case FormatZstd:
		return magicZstd, 0
	case FormatDTB:
		return magicDTB, 0
	case FormatARM64Image:
		return magicARM64, offsetARM64
	case FormatZImage:
		return magicZImage, offsetZImage
	}
	return "", 0
}

func (f Format) String() string {
	switch f {
	case FormatAndroidBoot:
		return "aosp"
	case FormatVendorBoot:
		return "aosp_vendor"
	case FormatGzip:
		return "gzip"
	case FormatXZ:
		return "xz"
	case FormatLZMA:
		return "lzma"
	case FormatBzip2:
		return "bzip2"
	case FormatLZ4:
		return "lz4"
	case FormatLZ4Legacy:
		return "lz4_legacy"
	case FormatZstd:
		return "zstd"
	case FormatDTB:
		return "dtb"
	case FormatARM64Image:
		return "arm64_image"
	case FormatZImage:
		return "zimage"
	}
	return "raw"
}
