package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

const hexdumpWidth = 16

func hexdump(offset int, data []byte, mark []bool) string {
	var result strings.Builder
	red := color.New(color.FgRed, color.Bold)

	for len(data) > 0 {
		l := len(data)
		if l > hexdumpWidth {
			l = hexdumpWidth
		}
		work := data[:l]
		data = data[l:]
		var workMark []bool
		if mark != nil {
			workMark = mark[:l]
			mark = mark[l:]
		}

		var workHex, workASCII strings.Builder
		for i := 0; i < hexdumpWidth; i++ {
			if i >= len(work) {
				workHex.WriteString("   ")
				workASCII.WriteByte(' ')
			} else {
				m := work[i]
				hex := fmt.Sprintf("%02x ", m)
				if m < 32 || m > 126 {
					m = '.'
				}
				ascii := string(rune(m))

				if workMark != nil && workMark[i] {
					hex = red.Sprint(hex)
					ascii = red.Sprint(ascii)
				}
				workHex.WriteString(hex)
				workASCII.WriteString(ascii)
			}
			if i%8 == 7 {
				workHex.WriteByte(' ')
			}
		}

		fmt.Fprintf(&result, "%08x  %s|%s|\n", offset, workHex.String(), workASCII.String())
		offset += l
	}

	return result.String()
}
