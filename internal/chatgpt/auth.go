package chatgpt

import (
	"regexp"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/evalloop/evalloop/internal/logging"
)

// Modal kinds the login flow distinguishes.
const (
	modalWelcomeBack = "welcome_back"
	modalLogInSignUp = "log_in_sign_up"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// authenticateIfNeeded resolves the login state after loading chatgpt.com
// with a restored session:
//
//  1. wait for a login modal to appear and handle it, or
//  2. with no modal, an absent "Log in" button means already logged in, or
//  3. click the "Log in" button to trigger the modal and retry once.
//
// Returns true when the chat interface is usable.
func authenticateIfNeeded(page playwright.Page) bool {
	const maxAttempts = 2

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		logging.Debugf("Authentication attempt %d/%d", attempt, maxAttempts)
		page.WaitForTimeout(5000)

		if modal := detectModal(page); modal != "" {
			logging.Debugf("Detected auth modal: %s", modal)
			if !handleModal(page, modal) {
				logging.Warn("Failed to handle authentication modal")
				return false
			}
			page.WaitForTimeout(5000)
			return chatReady(page)
		}

		login := findLoginButton(page)
		if login == nil {
			// No modal and no login button: the restored session holds.
			return chatReady(page)
		}

		logging.Debug("Found 'Log in' button, clicking to trigger the modal")
		if err := login.Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(5000),
		}); err != nil {
			logging.Warnf("Clicking 'Log in' failed: %v", err)
			return false
		}
	}

	logging.Warn("Authentication failed after maximum attempts")
	return false
}

// loginRequired reports the logged-out state: no chat interface and a
// visible "Log in" button.
func loginRequired(page playwright.Page) bool {
	if visible, err := page.Locator("#prompt-textarea").IsVisible(); err == nil && visible {
		return false
	}
	return findLoginButton(page) != nil
}

func detectModal(page playwright.Page) string {
	if visible, err := page.Locator(`text="Welcome back"`).IsVisible(); err == nil && visible {
		return modalWelcomeBack
	}
	if visible, err := page.Locator(`text="Log in or sign up"`).IsVisible(); err == nil && visible {
		return modalLogInSignUp
	}
	return ""
}

func handleModal(page playwright.Page, modal string) bool {
	// Let the modal finish rendering before poking at it.
	page.WaitForTimeout(1500)

	var button playwright.Locator
	if modal == modalWelcomeBack {
		button = findAccountButton(page)
	}
	if button == nil {
		button = findGoogleButton(page)
	}
	if button == nil {
		logging.Warn("Could not find an authentication button in the modal")
		return false
	}

	if err := button.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(5000),
	}); err != nil {
		logging.Warnf("Clicking authentication button failed: %v", err)
		return false
	}

	page.WaitForTimeout(3000)
	return true
}

// findAccountButton looks for the "Welcome back" account tile: a wide
// clickable element containing an email address that is not a remove or
// close control.
func findAccountButton(page playwright.Page) playwright.Locator {
	elements, err := page.Locator(`[role="button"]`).All()
	if err != nil {
		return nil
	}

	for _, elem := range elements {
		visible, err := elem.IsVisible()
		if err != nil || !visible {
			continue
		}

		text, err := elem.InnerText(playwright.LocatorInnerTextOptions{Timeout: playwright.Float(500)})
		if err != nil {
			continue
		}
		html, _ := elem.InnerHTML(playwright.LocatorInnerHTMLOptions{Timeout: playwright.Float(500)})
		if !emailPattern.MatchString(text) && !emailPattern.MatchString(html) {
			continue
		}

		label, _ := elem.GetAttribute("aria-label")
		lower := strings.ToLower(label)
		if strings.Contains(lower, "remove") || strings.Contains(lower, "close") || strings.Contains(lower, "delete") {
			continue
		}

		if box, err := elem.BoundingBox(); err == nil && box != nil && box.Width > 100 {
			return elem
		}
	}
	return nil
}

func findGoogleButton(page playwright.Page) playwright.Locator {
	selectors := []string{
		`button:has-text("Continue with Google")`,
		`button:text("Continue with Google")`,
		`[role="button"]:has-text("Continue with Google")`,
	}
	return firstVisible(page, selectors)
}

func findLoginButton(page playwright.Page) playwright.Locator {
	selectors := []string{
		`button:has-text("Log in")`,
		`a:has-text("Log in")`,
		`header button:has-text("Log in")`,
		`[role="button"]:has-text("Log in")`,
	}
	return firstVisible(page, selectors)
}

func firstVisible(page playwright.Page, selectors []string) playwright.Locator {
	for _, selector := range selectors {
		btn := page.Locator(selector).First()
		if visible, err := btn.IsVisible(); err == nil && visible {
			return btn
		}
	}
	return nil
}

func chatReady(page playwright.Page) bool {
	err := page.Locator("#prompt-textarea").WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(5000),
	})
	return err == nil
}
