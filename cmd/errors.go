package cmd

import (
	"errors"
	"fmt"

	"github.com/siteqa/siteqa/internal/guard"
	sharedErrors "github.com/siteqa/siteqa/internal/shared/errors"
)

// RunFailedError reports a run that reached the failed state.
type RunFailedError struct {
	ID     string
	Reason string
}

func (e *RunFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("test run %s failed", e.ID)
	}
	return fmt.Sprintf("test run %s failed: %s", e.ID, e.Reason)
}

// UnsupportedFormatError signals an unknown --format value.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q (use text, json or yaml)", e.Format)
}

// formatError renders err for the terminal.
func formatError(err error) string {
	var blocked *guard.BlockedOriginError
	switch {
	case errors.As(err, &blocked):
		return fmt.Sprintf("%s target refused: %s (%s)", colorError("✗"), blocked.URL, blocked.Reason)
	case errors.Is(err, sharedErrors.ErrInvalidInput):
		return fmt.Sprintf("%s invalid input: %v", colorError("✗"), err)
	}
	return fmt.Sprintf("%s %v", colorError("✗"), err)
}
