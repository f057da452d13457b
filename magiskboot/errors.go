package magiskboot

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrorNoOutput = errors.New("Tool did not produce the expected output file")
)

type CommandError struct {
	Args     []string
	ExitCode int
	Output   []byte
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.ExitCode < 0 && e.Err != nil {
		msg = fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	}

	out := strings.TrimSpace(string(e.Output))
	if out == "" {
		return msg
	}
	if i := strings.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}
	return msg + ": " + out
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
