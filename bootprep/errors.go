package bootprep

import (
	"errors"
	"fmt"
)

var (
	ErrorMissingArgument      = errors.New("Required argument is missing")
	ErrorMissingDependency    = errors.New("External tool not found")
	ErrorArchiveNotFound      = errors.New("Archive not found")
	ErrorImageNotFound        = errors.New("Kernel image not found")
	ErrorNoKernelInArchive    = errors.New("No kernel found in archive")
	ErrorDecompressionFailure = errors.New("Could not decompress kernel")
	ErrorCompressionFailure   = errors.New("Could not compress kernel")
	ErrorUnpackFailure        = errors.New("Could not unpack image")
	ErrorRepackFailure        = errors.New("Could not repack image")
	ErrorMissingStockImage    = errors.New("Stock image not present")
	ErrorArchiveTooLarge      = errors.New("Archive content exceeds size limit")
	ErrorInvalidArchivePath   = errors.New("Invalid archive path")
	ErrorAlreadyProduced      = errors.New("Output already produced in this run")
)

/* StepError names the pipeline step a fatal error came from */
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(step string, kind error, err error) error {
	if err == nil {
		return &StepError{Step: step, Err: kind}
	}
	if errors.Is(err, kind) {
		return &StepError{Step: step, Err: err}
	}
	return &StepError{Step: step, Err: fmt.Errorf("%w: %w", kind, err)}
}
