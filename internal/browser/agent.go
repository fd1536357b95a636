package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siteqa/siteqa/internal/checker"
	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/shared/constants"
	sharedErrors "github.com/siteqa/siteqa/internal/shared/errors"
)

const (
	pageSettle         = 2 * time.Second
	fieldWaitTimeout   = 30 * time.Second
	fillTimeout        = 20 * time.Second
	submitWaitTimeout  = 15 * time.Second
	landingIdleTimeout = 8 * time.Second
)

// LoginRequest describes one login attempt. Empty selectors are detected
// from the candidate lists.
type LoginRequest struct {
	TargetURL        string
	LoginURL         string
	Credentials      *Credentials
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	SuccessIndicator string
}

// Report is everything a login attempt produced. PostLogin is nil unless
// the login succeeded; JSErrors is nil when no browser session was opened.
type Report struct {
	Login     run.LoginResult
	PostLogin *run.PostLoginResult
	JSErrors  *run.JSErrorsResult
}

// state is a step of the login state machine.
type state int

const (
	stateNavigate state = iota
	stateDetectFields
	stateSubmit
	stateJudge
	stateExplore
	stateDone
)

func (s state) String() string {
	switch s {
	case stateNavigate:
		return "navigate"
	case stateDetectFields:
		return "detect_fields"
	case stateSubmit:
		return "submit"
	case stateJudge:
		return "judge_success"
	case stateExplore:
		return "explore"
	default:
		return "done"
	}
}

// Agent performs browser-driven logins.
type Agent struct {
	launcher  Launcher
	validator checker.Validator
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration)
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithValidator makes the agent refuse login and exploration URLs the
// origin guard rejects.
func WithValidator(v checker.Validator) AgentOption {
	return func(a *Agent) { a.validator = v }
}

// NewAgent creates an agent that opens one session per Run.
func NewAgent(launcher Launcher, logger *zap.Logger, opts ...AgentOption) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{launcher: launcher, logger: logger, sleep: sleepContext}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// allowed runs target through the origin guard, if one is configured.
func (a *Agent) allowed(ctx context.Context, target string) error {
	if a.validator == nil {
		return nil
	}
	_, err := a.validator.Validate(ctx, target)
	return err
}

// attempt is the mutable state threaded through the state machine.
type attempt struct {
	req       LoginRequest
	loginURL  string
	page      Page
	userSel   string
	passSel   string
	submitSel string
	finalURL  string
	outcome   run.LoginOutcome
	postLogin *run.PostLoginResult
}

// Run attempts the login and, on success, explores the authenticated UI.
// The credentials are scrubbed and the browser session torn down before Run
// returns, whatever the outcome.
func (a *Agent) Run(ctx context.Context, req LoginRequest) (report Report) {
	defer req.Credentials.Scrub()

	loginURL := req.LoginURL
	if loginURL == "" {
		loginURL = req.TargetURL
	}
	if req.Credentials.Scrubbed() {
		report.Login = run.LoginOutcome{Message: "No credentials supplied", Method: MethodException}.Result(loginURL, "")
		return report
	}
	if err := a.allowed(ctx, loginURL); err != nil {
		a.logger.Warn("login url refused", zap.String("login_url", loginURL), zap.Error(err))
		report.Login = run.LoginOutcome{
			Message: truncate("Login URL refused: "+err.Error(), 120),
			Method:  MethodBlockedOrigin,
		}.Result(loginURL, "")
		return report
	}

	session, err := a.launcher.Launch(ctx)
	if err != nil {
		a.logger.Warn("browser launch failed", zap.Error(err))
		report.Login = run.LoginOutcome{
			Message: "Login automation encountered an issue.",
			Method:  MethodException,
		}.Result(loginURL, "")
		return report
	}
	defer func() {
		if err := session.ClearCookies(); err != nil {
			a.logger.Debug("failed to clear cookies", zap.Error(err))
		}
		if err := session.Close(); err != nil {
			a.logger.Warn("failed to close browser session", zap.Error(err))
		}
	}()

	at := &attempt{req: req, loginURL: loginURL, page: session.Page()}
	if err := a.drive(ctx, at); err != nil {
		at.outcome = failureOutcome(err)
		at.postLogin = nil
		a.logger.Info("login attempt aborted", zap.String("login_url", loginURL), zap.Error(err))
	}

	report.Login = at.outcome.Result(loginURL, at.finalURL)
	report.PostLogin = at.postLogin
	js := checker.JSErrorsFromBrowser(at.page.JSErrors())
	report.JSErrors = &js
	return report
}

// drive runs the state machine until done or the first error.
func (a *Agent) drive(ctx context.Context, at *attempt) error {
	st := stateNavigate
	for st != stateDone {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.logger.Debug("login state", zap.Stringer("state", st))

		var err error
		switch st {
		case stateNavigate:
			st, err = a.navigate(ctx, at)
		case stateDetectFields:
			st, err = a.detectFields(at)
		case stateSubmit:
			st, err = a.submit(ctx, at)
		case stateJudge:
			st, err = a.judgeSuccess(at)
		case stateExplore:
			at.postLogin = a.explore(ctx, at.page, allowedHosts(at.req.TargetURL, at.finalURL))
			st = stateDone
		}
		if err != nil {
			return fmt.Errorf("%s: %w", st, err)
		}
	}
	return nil
}

func (a *Agent) navigate(ctx context.Context, at *attempt) (state, error) {
	// Cold-start hosts answer the first request slowly; warm the origin first.
	if err := at.page.Goto(originOf(at.loginURL), constants.LoginNavigationTimeout); err != nil {
		a.logger.Debug("pre-warm request failed", zap.Error(err))
	}
	a.sleep(ctx, pageSettle)

	if err := at.page.Goto(at.loginURL, constants.LoginNavigationTimeout); err != nil {
		return stateNavigate, fmt.Errorf("failed to open login page: %w", err)
	}
	a.sleep(ctx, pageSettle)
	_ = at.page.WaitVisible(emailFieldSelector, fieldWaitTimeout)
	return stateDetectFields, nil
}

func (a *Agent) detectFields(at *attempt) (state, error) {
	at.userSel = at.req.UsernameSelector
	if at.userSel == "" {
		at.userSel = firstVisible(at.page, usernameCandidates)
	}
	if at.userSel == "" {
		return stateDetectFields, sharedErrors.ErrFieldNotFound
	}

	at.passSel = at.req.PasswordSelector
	if at.passSel == "" {
		at.passSel = defaultPasswordSelector
	}

	at.submitSel = at.req.SubmitSelector
	if at.submitSel == "" {
		at.submitSel = firstVisible(at.page, submitCandidates)
	}
	a.logger.Debug("login fields detected",
		zap.String("username", at.userSel),
		zap.String("password", at.passSel),
		zap.String("submit", at.submitSel))
	return stateSubmit, nil
}

func (a *Agent) submit(ctx context.Context, at *attempt) (state, error) {
	p := at.page
	if err := p.WaitVisible(at.userSel, fillTimeout); err != nil {
		return stateSubmit, err
	}
	if err := p.Fill(at.userSel, at.req.Credentials.Username); err != nil {
		return stateSubmit, err
	}
	if err := p.WaitVisible(at.passSel, fillTimeout); err != nil {
		return stateSubmit, err
	}
	if err := p.Fill(at.passSel, at.req.Credentials.secret()); err != nil {
		return stateSubmit, err
	}

	if at.submitSel != "" {
		if err := p.WaitVisible(at.submitSel, submitWaitTimeout); err != nil {
			return stateSubmit, err
		}
		if err := p.Click(at.submitSel, submitWaitTimeout); err != nil {
			return stateSubmit, err
		}
	} else if err := p.Press("Enter"); err != nil {
		return stateSubmit, err
	}

	if err := p.WaitNetworkIdle(constants.NetworkIdleTimeout); err != nil {
		a.sleep(ctx, constants.PostSubmitSettle)
	}
	return stateJudge, nil
}

func (a *Agent) judgeSuccess(at *attempt) (state, error) {
	at.finalURL = at.page.URL()
	ev := evidence{
		finalURL:   at.finalURL,
		redirected: !sameLocation(at.finalURL, at.loginURL),
	}

	if at.req.SuccessIndicator != "" {
		ev.indicatorSupplied = true
		ev.indicatorFound = at.page.WaitVisible(at.req.SuccessIndicator, constants.SuccessIndicatorTimeout) == nil
	} else {
		body, err := at.page.BodyText()
		if err != nil {
			return stateJudge, fmt.Errorf("failed to read page text: %w", err)
		}
		text := strings.ToLower(body)
		ev.hasError = containsAny(text, errorKeywords)
		ev.hasDashboard = containsAny(strings.ToLower(at.finalURL)+" "+text, dashboardKeywords)
	}

	at.outcome = judge(ev)
	a.logger.Info("login judged",
		zap.Bool("success", at.outcome.Success),
		zap.String("method", at.outcome.Method),
		zap.String("final_url", at.finalURL))
	if at.outcome.Success {
		return stateExplore, nil
	}
	return stateDone, nil
}

func failureOutcome(err error) run.LoginOutcome {
	if errors.Is(err, sharedErrors.ErrFieldNotFound) {
		return run.LoginOutcome{
			Message: "Could not find username/email input field on the page",
			Method:  MethodFieldDetection,
		}
	}
	return run.LoginOutcome{Message: classifyFailure(err), Method: MethodException}
}

func firstVisible(p Page, candidates []string) string {
	for _, sel := range candidates {
		if p.Visible(sel) {
			return sel
		}
	}
	return ""
}

// allowedHosts lists the hosts exploration may navigate to.
func allowedHosts(urls ...string) []string {
	var hosts []string
	for _, raw := range urls {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			hosts = append(hosts, strings.ToLower(u.Host))
		}
	}
	return hosts
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
