package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/anykernel/bootprep/bootprep"
	"github.com/fatih/color"
)

type logger struct {
	sync.Mutex

	out   io.Writer
	level int

	warn  *color.Color
	step  *color.Color
	debug *color.Color
	err   *color.Color
}

func newLogger(out io.Writer, level int) *logger {
	return &logger{
		out:   out,
		level: level,
		warn:  color.New(color.FgYellow),
		step:  color.New(color.FgCyan),
		debug: color.New(color.Faint),
		err:   color.New(color.FgRed, color.Bold),
	}
}

func (l *logger) Log(level int, format string, param ...interface{}) {
	if level > l.level {
		return
	}

	l.Lock()
	defer l.Unlock()

	str := strings.TrimRight(fmt.Sprintf(format, param...), "\n")
	switch level {
	case bootprep.LogWarn:
		l.warn.Fprintf(l.out, "warning: %s\n", str)
	case bootprep.LogInfo:
		l.step.Fprint(l.out, "==> ")
		fmt.Fprintln(l.out, str)
	default:
		l.debug.Fprintf(l.out, "    %s\n", str)
	}
}

func (l *logger) Error(err error) {
	l.Lock()
	defer l.Unlock()

	l.err.Fprintf(l.out, "error: %v\n", err)
}
