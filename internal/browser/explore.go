package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/shared/constants"
)

const (
	landingSettle     = 2 * time.Second
	clickSettle       = 800 * time.Millisecond
	clickIdleTimeout  = 4 * time.Second
	maxNavLabelLen    = 50
	maxButtonLabelLen = 60
	maxActionErrorLen = 120
)

// explorer accumulates the post-login report.
type explorer struct {
	agent   *Agent
	page    Page
	hosts   []string
	landing string
	result  run.PostLoginResult
}

type navLink struct {
	href     string
	label    string
	selector string
}

// explore clicks through the authenticated UI without submitting anything.
// Nav links are visited first, then buttons are clicked on the landing page
// and every page a nav link led to. Destructive buttons are recorded as
// skipped. Forms are only counted.
func (a *Agent) explore(ctx context.Context, page Page, hosts []string) *run.PostLoginResult {
	errBase := len(page.JSErrors())
	ex := &explorer{agent: a, page: page, hosts: hosts, landing: page.URL()}
	if err := page.WaitNetworkIdle(landingIdleTimeout); err != nil {
		a.sleep(ctx, landingSettle)
	}
	ex.result.PagesVisited = []string{ex.landing}

	visited := ex.visitNavLinks(ctx)
	pages := []string{ex.landing}
	for _, u := range visited {
		if len(pages) >= constants.MaxButtonPages {
			break
		}
		if !containsLocation(pages, u) {
			pages = append(pages, u)
		}
	}
	ex.scanButtons(ctx, pages)
	ex.recordForms(ctx)

	if errs := page.JSErrors(); len(errs) > errBase {
		post := errs[errBase:]
		if len(post) > constants.MaxExplorationJSErrors {
			post = post[:constants.MaxExplorationJSErrors]
		}
		ex.result.JSErrors = post
	}
	ex.finish()
	a.logger.Info("post-login exploration finished",
		zap.String("status", string(ex.result.Status)),
		zap.Int("actions", len(ex.result.Actions)))
	return &ex.result
}

func (ex *explorer) record(action run.UIActionResult) bool {
	if len(ex.result.Actions) >= constants.MaxUIActions {
		return false
	}
	ex.result.Actions = append(ex.result.Actions, action)
	return true
}

func (ex *explorer) full() bool {
	return len(ex.result.Actions) >= constants.MaxUIActions
}

// visitNavLinks opens each navigation link and returns to the landing page
// after each one. It returns the URLs the links resolved to.
func (ex *explorer) visitNavLinks(ctx context.Context) []string {
	links := ex.navLinks()
	ex.result.Tally.LinksFound = len(links)
	if len(links) > constants.MaxNavLinks {
		links = links[:constants.MaxNavLinks]
	}

	var reached []string
	for _, link := range links {
		if ctx.Err() != nil || ex.full() {
			break
		}
		if err := ex.agent.allowed(ctx, link.href); err != nil {
			ex.record(run.UIActionResult{
				ActionType: run.ActionNavLink,
				Label:      link.label,
				Selector:   link.selector,
				PageURL:    ex.landing,
				Status:     run.StatusSkip,
				Error:      truncate(err.Error(), maxActionErrorLen),
				Note:       "Skipped, origin refused",
			})
			continue
		}
		start := time.Now()
		err := ex.page.Goto(link.href, constants.NavVisitTimeout)
		elapsed := time.Since(start).Milliseconds()

		action := run.UIActionResult{
			ActionType:     run.ActionNavLink,
			Label:          link.label,
			Selector:       link.selector,
			PageURL:        ex.landing,
			ResponseTimeMs: &elapsed,
		}
		if err != nil {
			action.Status = run.StatusFail
			action.Error = truncate(err.Error(), maxActionErrorLen)
			ex.result.Tally.LinksFailed++
		} else {
			action.Status = run.StatusPass
			action.ResultURL = ex.page.URL()
			action.Note = "Navigated to " + action.ResultURL
			ex.result.Tally.LinksPassed++
			reached = append(reached, action.ResultURL)
			ex.result.PagesVisited = append(ex.result.PagesVisited, action.ResultURL)
		}
		ex.record(action)
		ex.returnTo(ex.landing)
	}
	return reached
}

// navLinks collects same-site navigation links, deduplicated by path.
func (ex *explorer) navLinks() []navLink {
	base, err := url.Parse(ex.landing)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var links []navLink
	for _, sel := range navLinkSelectors {
		elems, err := ex.page.QueryAll(sel)
		if err != nil {
			continue
		}
		for i, el := range elems {
			href := strings.TrimSpace(el.Attribute("href"))
			if skipHref(href) {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			abs := base.ResolveReference(ref)
			if !ex.allowedHost(abs.Host) {
				continue
			}
			key := strings.ToLower(abs.Host) + strings.TrimSuffix(abs.Path, "/")
			if seen[key] {
				continue
			}
			seen[key] = true

			abs.Fragment = ""
			label := truncate(collapseSpace(el.Text()), maxNavLabelLen)
			if label == "" {
				label = href
			}
			links = append(links, navLink{
				href:     abs.String(),
				label:    label,
				selector: fmt.Sprintf("%s >> nth=%d", sel, i),
			})
		}
	}
	return links
}

func skipHref(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"mailto:", "tel:", "javascript:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return containsAny(lower, externalNavDomains)
}

func (ex *explorer) allowedHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range ex.hosts {
		if h == host {
			return true
		}
	}
	return false
}

// scanButtons clicks every safe, visible button on each page.
func (ex *explorer) scanButtons(ctx context.Context, pages []string) {
	seen := make(map[string]bool)
	for _, pageURL := range pages {
		if ctx.Err() != nil || ex.full() {
			return
		}
		if !sameLocation(ex.page.URL(), pageURL) {
			if err := ex.agent.allowed(ctx, pageURL); err != nil {
				ex.agent.logger.Warn("button scan page refused", zap.String("url", pageURL), zap.Error(err))
				continue
			}
			if err := ex.page.Goto(pageURL, constants.NavVisitTimeout); err != nil {
				ex.agent.logger.Debug("failed to open page for button scan", zap.String("url", pageURL), zap.Error(err))
				continue
			}
		}
		for _, sel := range buttonSelectors {
			elems, err := ex.page.QueryAll(sel)
			if err != nil {
				continue
			}
			if len(elems) > constants.MaxButtonsPerSelector {
				elems = elems[:constants.MaxButtonsPerSelector]
			}
			for i, el := range elems {
				if ctx.Err() != nil || ex.full() {
					return
				}
				if !el.Visible() || !el.Enabled() {
					continue
				}
				label := buttonLabel(el)
				if len(label) < 2 {
					continue
				}
				key := pageURL + "::" + strings.ToLower(label)
				if seen[key] {
					continue
				}
				seen[key] = true
				ex.result.Tally.ButtonsFound++

				selector := fmt.Sprintf("%s >> nth=%d", sel, i)
				if isDestructive(label) {
					ex.result.Tally.ButtonsSkipped++
					ex.record(run.UIActionResult{
						ActionType: run.ActionButton,
						Label:      label,
						Selector:   selector,
						PageURL:    pageURL,
						Status:     run.StatusSkip,
						Note:       "Skipped, potentially destructive action",
					})
					continue
				}
				ex.click(ctx, el, pageURL, label, selector)
			}
		}
	}
}

// click presses one button and classifies the response. A failed click is
// recorded and the scan carries on.
func (ex *explorer) click(ctx context.Context, el Element, pageURL, label, selector string) {
	action := run.UIActionResult{
		ActionType: run.ActionButton,
		Label:      label,
		Selector:   selector,
		PageURL:    pageURL,
	}
	start := time.Now()
	if err := el.Click(constants.ClickTimeout); err != nil {
		elapsed := time.Since(start).Milliseconds()
		action.ResponseTimeMs = &elapsed
		action.Status = run.StatusFail
		action.Error = truncate(err.Error(), maxActionErrorLen)
		ex.result.Tally.ButtonsFailed++
		ex.record(action)
		return
	}
	ex.agent.sleep(ctx, clickSettle)
	_ = ex.page.WaitNetworkIdle(clickIdleTimeout)
	elapsed := time.Since(start).Milliseconds()
	action.ResponseTimeMs = &elapsed
	action.Status = run.StatusPass

	switch current := ex.page.URL(); {
	case ex.page.Visible(modalSelector):
		_ = ex.page.Press("Escape")
		action.Note = "Opened modal/dialog, closed with Escape"
	case !sameLocation(current, pageURL):
		action.ResultURL = current
		action.Note = "Navigated to " + current
		ex.returnTo(pageURL)
	default:
		action.Note = "Button clicked, UI response detected (no navigation)"
	}
	ex.result.Tally.ButtonsPassed++
	ex.record(action)
}

// recordForms counts forms on the landing page. Forms are never submitted.
func (ex *explorer) recordForms(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ex.returnTo(ex.landing)
	forms, err := ex.page.QueryAll("form")
	if err != nil {
		return
	}
	ex.result.Tally.FormsFound = len(forms)
	for i, form := range forms {
		if i >= constants.MaxFormsRecorded {
			break
		}
		if !ex.record(run.UIActionResult{
			ActionType: run.ActionForm,
			Label:      fmt.Sprintf("Form with %d input(s)", form.Count(formInputSelector)),
			Selector:   fmt.Sprintf("form >> nth=%d", i),
			PageURL:    ex.landing,
			Status:     run.StatusPass,
			Note:       "Form detected, not submitted",
		}) {
			break
		}
		ex.result.Tally.FormsTested++
	}
}

// returnTo goes back in history, falling back to a direct navigation when
// history did not lead to target.
func (ex *explorer) returnTo(target string) {
	if sameLocation(ex.page.URL(), target) {
		return
	}
	if err := ex.page.GoBack(constants.NavVisitTimeout); err == nil && sameLocation(ex.page.URL(), target) {
		return
	}
	if err := ex.page.Goto(target, constants.NavVisitTimeout); err != nil {
		ex.agent.logger.Debug("failed to return to page", zap.String("url", target), zap.Error(err))
	}
}

func (ex *explorer) finish() {
	r := &ex.result
	tested := 0
	for _, a := range r.Actions {
		if a.Status != run.StatusSkip {
			tested++
		}
	}
	passed, failed := r.Tally.Passed(), r.Tally.Failed()
	total := passed + failed
	switch {
	case tested == 0:
		r.Status, r.Message = run.StatusWarning, "No interactive UI elements found on the post-login page"
	case failed == 0:
		r.Status, r.Message = run.StatusPass, fmt.Sprintf("All %d UI interaction(s) passed successfully", total)
	case failed <= passed:
		r.Status, r.Message = run.StatusWarning, fmt.Sprintf("%d passed, %d failed out of %d", passed, failed, total)
	default:
		r.Status, r.Message = run.StatusFail, fmt.Sprintf("%d UI interaction(s) failed out of %d tested", failed, total)
	}
}

func buttonLabel(el Element) string {
	if text := truncate(collapseSpace(el.Text()), maxButtonLabelLen); text != "" {
		return text
	}
	for _, attr := range []string{"aria-label", "title", "value"} {
		if v := strings.TrimSpace(el.Attribute(attr)); v != "" {
			return truncate(v, maxButtonLabelLen)
		}
	}
	return "Unnamed Button"
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsLocation(list []string, target string) bool {
	for _, u := range list {
		if sameLocation(u, target) {
			return true
		}
	}
	return false
}
