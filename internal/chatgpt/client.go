// Package chatgpt drives the ChatGPT web UI through a browser session:
// restore a saved login, submit prompts, scrape answers, extract the
// cited sources. Selectors and waits follow the current chatgpt.com
// markup and are the part of this package expected to rot.
package chatgpt

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/evalloop/evalloop/internal/browser"
	"github.com/evalloop/evalloop/internal/eval"
	"github.com/evalloop/evalloop/internal/logging"
	"github.com/evalloop/evalloop/internal/session"
)

// BaseURL is the chat UI entry point; every new conversation starts here.
const BaseURL = "https://chatgpt.com/"

// Responses shorter than this are treated as scraping noise, not answers.
const minResponseLength = 50

// Options configures the driver.
type Options struct {
	Headless          bool
	NavigationTimeout time.Duration
	ResponseTimeout   time.Duration
}

// Client automates one ChatGPT tab at a time. It satisfies the
// orchestrator's AutomationClient contract: Initialize reports
// eval.ErrAuthExpired for dead logins and eval.ErrBrowserUnavailable
// when the browser runtime itself cannot start.
type Client struct {
	opts    Options
	session *browser.Session
	ready   bool
}

// NewClient returns an unstarted driver.
func NewClient(opts Options) *Client {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = 60 * time.Second
	}
	return &Client{opts: opts}
}

// Initialize launches a browser with the descriptor's storage state and
// verifies the restored login still works.
func (c *Client) Initialize(ctx context.Context, desc session.Descriptor) error {
	_ = c.Close()

	if err := ctx.Err(); err != nil {
		return err
	}

	pw, err := browser.Runtime()
	if err != nil {
		return fmt.Errorf("%w: %v", eval.ErrBrowserUnavailable, err)
	}

	sess, err := browser.Launch(pw, browser.LaunchOptions{
		Headless:          c.opts.Headless,
		StorageStatePath:  desc.Path,
		NavigationTimeout: c.opts.NavigationTimeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", eval.ErrBrowserUnavailable, err)
	}
	c.session = sess

	page := sess.Page()
	if _, err := page.Goto(BaseURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(c.opts.NavigationTimeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		_ = c.Close()
		return fmt.Errorf("open %s: %w", BaseURL, err)
	}

	if !authenticateIfNeeded(page) {
		_ = c.Close()
		return fmt.Errorf("session %s no longer authenticates: %w", desc.ID, eval.ErrAuthExpired)
	}

	c.ready = true
	return nil
}

// Evaluate submits the prompt, waits for generation to finish, and
// scrapes the response and its citations.
func (c *Client) Evaluate(ctx context.Context, prompt string) (*eval.Answer, error) {
	if !c.Ready() {
		return nil, fmt.Errorf("client not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page := c.session.Page()

	textarea := page.Locator("#prompt-textarea")
	if err := textarea.Fill(prompt); err != nil {
		return nil, c.classify(page, fmt.Errorf("fill prompt: %w", err))
	}
	if err := textarea.Press("Enter"); err != nil {
		return nil, c.classify(page, fmt.Errorf("submit prompt: %w", err))
	}

	c.waitForResponseComplete(page)

	response := extractResponseText(page)
	citations := extractCitations(page)

	return &eval.Answer{Response: response, Citations: citations}, nil
}

// ResetConversation navigates back to a blank conversation in the same
// browser.
func (c *Client) ResetConversation(ctx context.Context) error {
	if !c.Ready() {
		return fmt.Errorf("client not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	page := c.session.Page()

	if _, err := page.Goto(BaseURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(c.opts.NavigationTimeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("open new conversation: %w", err)
	}

	if !authenticateIfNeeded(page) {
		logging.Warn("Authentication check completed with warnings")
	}

	textarea := page.Locator("#prompt-textarea")
	if err := textarea.WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(30000),
	}); err != nil {
		return c.classify(page, fmt.Errorf("prompt textarea not ready: %w", err))
	}
	return nil
}

// Ready reports whether the driver has a live, authenticated browser.
func (c *Client) Ready() bool {
	return c.ready && c.session != nil && c.session.Alive()
}

// Close shuts the browser down. Safe to call multiple times.
func (c *Client) Close() error {
	c.ready = false
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

// classify upgrades an automation error to eval.ErrAuthExpired when the
// page shows the logged-out state, so the orchestrator rotates instead
// of burning attempts on a dead session.
func (c *Client) classify(page playwright.Page, err error) error {
	if loginRequired(page) {
		c.ready = false
		return fmt.Errorf("%w: %v", eval.ErrAuthExpired, err)
	}
	return err
}

// waitForResponseComplete waits for the streaming indicator (the Stop
// button) to disappear. The flat sleeps bracket DOM settling before and
// after generation.
func (c *Client) waitForResponseComplete(page playwright.Page) {
	page.WaitForTimeout(2000)

	stop := page.Locator(`button[aria-label*="Stop"]`)
	if n, err := stop.Count(); err == nil && n > 0 {
		if err := stop.First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateHidden,
			Timeout: playwright.Float(float64(c.opts.ResponseTimeout.Milliseconds())),
		}); err != nil {
			logging.Warnf("Response generation still running after %v", c.opts.ResponseTimeout)
		}
	}

	page.WaitForTimeout(2000)
}

// responseSelectors is tried in order; the last match of the first
// selector that yields a long-enough text wins.
var responseSelectors = []string{
	`[data-message-author-role="assistant"] .markdown`,
	`[data-message-author-role="assistant"]`,
	`article[data-testid*="conversation-turn"] .markdown`,
	`article[data-testid*="conversation-turn"]`,
	`.markdown`,
	`[class*="agent-turn"]`,
	`div[class*="markdown"]`,
}

func extractResponseText(page playwright.Page) string {
	for _, selector := range responseSelectors {
		messages, err := page.Locator(selector).All()
		if err != nil || len(messages) == 0 {
			continue
		}
		text, err := messages[len(messages)-1].InnerText()
		if err == nil && len(text) > minResponseLength {
			return text
		}
	}
	logging.Warn("Response too short or not found")
	return "No response found"
}
