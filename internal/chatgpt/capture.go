package chatgpt

import (
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/evalloop/evalloop/internal/logging"
)

// WaitForManualLogin polls the page until the user finishes logging in
// by hand, for up to timeout. Used by session capture, where the
// browser is always headed. Returns true once the chat interface is
// usable.
func WaitForManualLogin(page playwright.Page, timeout time.Duration) bool {
	logging.Info("Waiting for manual login to complete...")

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		// The chat textarea is the definitive logged-in signal.
		textarea := page.Locator("#prompt-textarea")
		if visible, err := textarea.IsVisible(); err == nil && visible {
			logging.Info("Login successful, chat interface detected")
			return true
		}

		// A vanished "Log in" button usually means login just finished
		// and the interface is still rendering.
		login := page.Locator(`button:has-text("Log in"), a:has-text("Log in")`).First()
		if n, err := login.Count(); err == nil && n == 0 {
			page.WaitForTimeout(3000)
			if n, err := textarea.Count(); err == nil && n > 0 {
				logging.Info("Chat interface ready")
				return true
			}
		}

		page.WaitForTimeout(2000)
	}

	logging.Warnf("Manual login timed out after %v", timeout)
	return false
}

// FinishCapture handles the post-login modal, if any, and verifies the
// chat interface before the storage state is saved.
func FinishCapture(page playwright.Page) bool {
	if modal := detectModal(page); modal != "" {
		if !handleModal(page, modal) {
			return false
		}
	}

	err := page.Locator("#prompt-textarea").WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	})
	return err == nil
}
