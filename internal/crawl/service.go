// Package crawl fetches web pages with headless Chrome and extracts
// their readable text as ordered runs for the annotation surface.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"

	"margin/api/internal/highlight"
)

// ErrBrowserUnavailable means no chromium binary is on PATH.
var ErrBrowserUnavailable = errors.New("crawl browser unavailable")

// Page is one fetched page: its title and the block-level text runs in
// display order. Block breaks ride on the tail of the preceding run so
// the flattened surface keeps paragraph boundaries.
type Page struct {
	Title string
	Runs  []highlight.Run
}

// extractScript pulls the innermost block elements in document order.
// Filtering to leaf blocks keeps a blockquote's paragraphs from being
// captured twice.
const extractScript = `(() => {
	const selector = "p, h1, h2, h3, h4, h5, h6, li, blockquote, pre, figcaption";
	const all = Array.from(document.querySelectorAll(selector));
	const leaves = all.filter(el => !el.querySelector(selector));
	const blocks = leaves.map(el => el.innerText.trim()).filter(t => t.length > 0);
	return {title: document.title, blocks: blocks};
})()`

// Service fetches pages on demand.
type Service struct {
	timeout time.Duration
}

func New() *Service {
	return &Service{timeout: 45 * time.Second}
}

// Fetch navigates to the URL and returns the page text. Only http and
// https URLs are fetched. An empty result is not an error; some pages
// simply have no block text.
func (s *Service) Fetch(ctx context.Context, rawURL string) (Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Page{}, fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}

	if _, err := exec.LookPath("chromium-browser"); err != nil {
		if _, fallbackErr := exec.LookPath("chromium"); fallbackErr != nil {
			return Page{}, fmt.Errorf("%w: chromium not installed", ErrBrowserUnavailable)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var payload struct {
		Title  string   `json:"title"`
		Blocks []string `json:"blocks"`
	}
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
		// Give client-rendered pages a moment to settle.
		chromedp.Sleep(time.Second),
		chromedp.Evaluate(extractScript, &payload),
	)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	return Page{Title: payload.Title, Runs: buildRuns(payload.Blocks)}, nil
}

// buildRuns turns extracted blocks into surface runs. Every run but the
// last carries a trailing blank line, so offsets captured against the
// flattened text see paragraph breaks as real characters.
func buildRuns(blocks []string) []highlight.Run {
	runs := make([]highlight.Run, 0, len(blocks))
	for i, text := range blocks {
		if i < len(blocks)-1 {
			text += "\n\n"
		}
		runs = append(runs, highlight.Run{ID: fmt.Sprintf("blk_%d", i+1), Text: text})
	}
	return runs
}
