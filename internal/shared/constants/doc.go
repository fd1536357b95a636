// Package constants centralizes tunables shared across siteqa.
//
// Timeouts, fan-out ceilings and result caps for the crawler, the static
// probes and the browser agent live here so cmd/ and internal/ agree on one
// set of numbers without import cycles.
package constants
