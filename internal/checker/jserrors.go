package checker

import (
	"fmt"

	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/shared/constants"
)

// JSErrorsPlaceholder is recorded in stage 1, before any browser session
// exists. A browser-backed result replaces it later when one is available.
func JSErrorsPlaceholder() run.JSErrorsResult {
	return run.JSErrorsResult{
		Header: run.Header{
			Status:  run.StatusPass,
			Message: "JS error capture requires browser (skipped in this run)",
		},
	}
}

// JSErrorsFromBrowser scores errors captured in a real browser: none is a
// pass, up to three a warning, more a failure.
func JSErrorsFromBrowser(errs []string) run.JSErrorsResult {
	status := run.StatusFail
	switch {
	case len(errs) == 0:
		status = run.StatusPass
	case len(errs) <= 3:
		status = run.StatusWarning
	}
	listed := errs
	if len(listed) > constants.MaxReportedJSErrors {
		listed = listed[:constants.MaxReportedJSErrors]
	}
	msg := "No JavaScript errors detected"
	if len(errs) > 0 {
		msg = fmt.Sprintf("%d JavaScript error(s) detected", len(errs))
	}
	return run.JSErrorsResult{
		Header:     run.Header{Status: status, Message: msg},
		ErrorCount: len(errs),
		Errors:     listed,
	}
}
