package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/siteqa/siteqa/internal/application"
	apprun "github.com/siteqa/siteqa/internal/application/run"
	"github.com/siteqa/siteqa/internal/browser"
	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/shared/constants"
)

const passwordEnv = "SITEQA_LOGIN_PASSWORD"

type runParams struct {
	LoginURL         string
	Username         string
	Password         string
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	SuccessIndicator string
	Format           string
	Output           string
	Timeout          time.Duration
}

var runFlags runParams

var runCmd = &cobra.Command{
	Use:   "run URL",
	Short: "Run every check against a site and print the report",
	Long: `Runs the full check suite against URL synchronously: speed, TLS, a bounded
crawl for broken links and images, the static page checks and, when
credentials are given, a browser login followed by a post-login exploration.

The password may be passed with --password or through ` + passwordEnv + `.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		log := appCtx.Logger
		defer func() { _ = log.Sync() }()

		format := strings.ToLower(runFlags.Format)
		if format != "text" && format != "json" && format != "yaml" {
			return &UnsupportedFormatError{Format: runFlags.Format}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if runFlags.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runFlags.Timeout)
			defer cancel()
		}

		// One-shot runs stay in memory; the report is the artifact.
		container, err := application.NewContainer(ctx, appCtx.Config.containerConfig(""), log)
		if err != nil {
			return fmt.Errorf("failed to initialize engine: %w", err)
		}
		defer func() { _ = container.Close(context.Background()) }()

		req := buildRunRequest(args[0], appCtx.Config.Crawl.MaxPages, runFlags)
		tr, err := container.Orchestrator.Prepare(ctx, req)
		if err != nil {
			if req.Login != nil {
				req.Login.Credentials.Scrub()
			}
			return err
		}

		if format == "text" {
			fmt.Fprintf(os.Stderr, "%s Testing %s (run %s)\n", colorInfo("→"), tr.URL(), tr.ID())
		}
		snap := container.Orchestrator.Execute(ctx, tr, req)

		if err := writeReport(cmd.OutOrStdout(), snap, format, runFlags.Output); err != nil {
			return err
		}
		if snap.Status == run.RunStatusFailed {
			return &RunFailedError{ID: snap.ID, Reason: snap.Error}
		}
		return nil
	},
}

func buildRunRequest(target string, maxPages int, p runParams) apprun.Request {
	req := apprun.Request{URL: target, MaxPages: maxPages}
	password := p.Password
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if p.Username != "" && password != "" {
		req.Login = &browser.LoginRequest{
			LoginURL:         p.LoginURL,
			Credentials:      browser.NewCredentials(p.Username, []byte(password)),
			UsernameSelector: p.UsernameSelector,
			PasswordSelector: p.PasswordSelector,
			SubmitSelector:   p.SubmitSelector,
			SuccessIndicator: p.SuccessIndicator,
		}
	}
	return req
}

// writeReport renders snap and sends it to path, or to w when path is empty.
func writeReport(w io.Writer, snap run.Snapshot, format, path string) error {
	var buf bytes.Buffer
	switch format {
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	case "yaml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	default:
		if path != "" {
			original := color.NoColor
			color.NoColor = true
			defer func() { color.NoColor = original }()
		}
		renderText(&buf, snap)
	}

	if path == "" {
		_, err := w.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), constants.DefaultFilePerm); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(w, "%s Report written to %s\n", colorSuccess("✓"), path)
	return nil
}

func renderText(w io.Writer, snap run.Snapshot) {
	fmt.Fprintf(w, "\n%s  %s\n", snap.URL, formatStatusWithColor(string(snap.Status)))
	if snap.OverallScore != nil {
		fmt.Fprintf(w, "Overall score: %s/100\n", formatScoreWithColor(*snap.OverallScore))
	}
	if snap.Summary != nil {
		fmt.Fprintf(w, "%s\n", *snap.Summary)
	}
	if snap.Error != "" {
		fmt.Fprintf(w, "%s %s\n", colorError("Error:"), snap.Error)
	}
	fmt.Fprintln(w)

	for _, res := range snap.Results.List() {
		h := res.Base()
		score := colorMuted("  -")
		if h.Score != nil {
			score = fmt.Sprintf("%3s", formatScoreWithColor(*h.Score))
		}
		fmt.Fprintf(w, "  %-20s %-8s %s  %s\n", res.Kind(), formatStatusWithColor(string(h.Status)), score, h.Message)

		if probe, ok := res.(run.ProbeResult); ok {
			for _, issue := range probe.Issues {
				fmt.Fprintf(w, "      %s %s\n", colorMuted("["+issue.Severity+"]"), issue.Message)
			}
		}
	}
	if snap.FinishedAt != nil {
		fmt.Fprintf(w, "\nFinished in %s\n", snap.FinishedAt.Sub(snap.StartedAt).Round(time.Millisecond))
	}
}

func init() {
	flags := runCmd.Flags()
	flags.StringVar(&runFlags.LoginURL, "login-url", "", "Login page URL (defaults to the target URL)")
	flags.StringVar(&runFlags.Username, "username", "", "Username or email for the login check")
	flags.StringVar(&runFlags.Password, "password", "", "Password for the login check (or set "+passwordEnv+")")
	flags.StringVar(&runFlags.UsernameSelector, "username-selector", "", "CSS selector of the username field")
	flags.StringVar(&runFlags.PasswordSelector, "password-selector", "", "CSS selector of the password field")
	flags.StringVar(&runFlags.SubmitSelector, "submit-selector", "", "CSS selector of the submit button")
	flags.StringVar(&runFlags.SuccessIndicator, "success-indicator", "", "CSS selector that appears after a successful login")
	flags.StringVarP(&runFlags.Format, "format", "f", "text", "Report format: text, json or yaml")
	flags.StringVarP(&runFlags.Output, "output", "O", "", "Write the report to this file instead of stdout")
	flags.DurationVar(&runFlags.Timeout, "run-timeout", 10*time.Minute, "Abort the run after this long (0 = no limit)")
	rootCmd.AddCommand(runCmd)
}
