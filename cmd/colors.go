package cmd

import (
	"strconv"
	"strings"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorMuted   = color.New(color.Faint).SprintFunc()
)

func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass", "completed":
		return colorSuccess(status)
	case "warning":
		return colorWarn(status)
	case "error", "fail", "failed":
		return colorError(status)
	case "skip":
		return colorMuted(status)
	default:
		return status
	}
}

// formatScoreWithColor colors a 0-100 score by the pass/warning bands.
func formatScoreWithColor(score int) string {
	s := strconv.Itoa(score)
	switch {
	case score >= 80:
		return colorSuccess(s)
	case score >= 50:
		return colorWarn(s)
	default:
		return colorError(s)
	}
}
