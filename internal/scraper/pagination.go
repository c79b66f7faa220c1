package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/channel-catalog-scraper/internal/browser"
)

// ScrollResult summarizes one pagination phase.
type ScrollResult struct {
	Iterations     int
	StagnantRounds int
	ItemCount      int
	BudgetReached  bool
}

// Paginator loads a listing and scrolls it until content stops growing.
type Paginator struct {
	policy   *browser.Policy
	settings Settings
	logger   *slog.Logger
}

func NewPaginator(policy *browser.Policy, settings Settings, logger *slog.Logger) *Paginator {
	if policy == nil {
		policy = browser.DefaultPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{
		policy:   policy,
		settings: settings,
		logger:   logger.With("component", "paginator"),
	}
}

// LoadAndScroll navigates to target and scrolls until either the matched
// element count reaches remaining or MaxStagnantAttempts consecutive rounds
// grow neither the page height nor the element count.
func (p *Paginator) LoadAndScroll(ctx context.Context, page Page, target Target, dismissConsent bool, remaining int) (ScrollResult, error) {
	var result ScrollResult
	logger := p.logger.With("target", target.Kind, "url", target.URL)

	logger.Info("navigating")
	if err := page.Goto(target.URL, p.settings.NavigationTimeout); err != nil {
		return result, fmt.Errorf("%w: %v", ErrNavigation, err)
	}

	if dismissConsent {
		dismissed, err := page.DismissConsent(p.settings.ConsentTimeout)
		switch {
		case err != nil:
			logger.Warn("failed to dismiss consent popup", "error", err)
		case dismissed:
			logger.Info("dismissed consent popup")
			if err := p.policy.Pause(ctx, p.policy.AfterDismiss); err != nil {
				return result, err
			}
		default:
			logger.Debug("no consent popup found")
		}
	}

	if err := page.WaitForContent(ContentSelector, p.settings.ContentTimeout); err != nil {
		return result, fmt.Errorf("%w: %v", ErrContentNotFound, err)
	}

	last, err := page.Measure(ContentSelector)
	if err != nil {
		logger.Warn("failed to sample page, extracting what is loaded", "error", err)
		return result, nil
	}
	result.ItemCount = last.ItemCount

	for result.StagnantRounds < p.settings.MaxStagnantAttempts {
		if last.ItemCount >= remaining {
			result.BudgetReached = true
			logger.Info("item budget reached", "items", last.ItemCount, "budget", remaining)
			break
		}

		if err := p.scrollRound(ctx, page); err != nil {
			return result, err
		}
		result.Iterations++

		current, err := page.Measure(ContentSelector)
		if err != nil {
			logger.Warn("failed to sample page", "error", err)
			current = last
		}

		if current == last {
			result.StagnantRounds++
			logger.Debug("no new content",
				"attempt", result.StagnantRounds,
				"max_attempts", p.settings.MaxStagnantAttempts)
			continue
		}

		result.StagnantRounds = 0
		last = current
		result.ItemCount = current.ItemCount
		logger.Info("found items", "count", current.ItemCount, "height", current.Height)
	}

	logger.Info("pagination finished",
		"iterations", result.Iterations,
		"items", result.ItemCount,
		"budget_reached", result.BudgetReached)

	return result, nil
}

// scrollRound performs the incremental scroll steps followed by the settle pause.
func (p *Paginator) scrollRound(ctx context.Context, page Page) error {
	for i := 0; i < p.settings.ScrollSteps; i++ {
		if err := page.ScrollBy(p.settings.ScrollFraction); err != nil {
			p.logger.Warn("scroll step failed", "step", i+1, "error", err)
		}
		if err := p.policy.Pause(ctx, p.policy.ScrollStep); err != nil {
			return err
		}
	}
	return p.policy.Pause(ctx, p.policy.Settle)
}
