// Package checker holds the network-facing checks of a test run.
//
// Architecture overview:
//
//   - Fetcher wraps a guarded *http.Client so every outbound request is
//     validated against the origin guard before it leaves the process.
//   - Prober classifies a single link or asset (HEAD first, GET fallback)
//     and Crawler walks same-origin pages breadth-first, feeding discovered
//     links and images through the prober with bounded concurrency.
//   - SpeedProbe and TLSProbe are the stage-1 checks. The static probes
//     (SEO, accessibility, security headers, web vitals, cookies, HTML
//     validation, content, PWA, functionality) implement Probe and run in
//     parallel under Runner, which coerces panics and errors into
//     error-status results so one failing probe never sinks the stage.
//
// Probes return domain results from internal/domain/run; scoring and
// persistence live elsewhere.
package checker
