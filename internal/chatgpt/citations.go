package chatgpt

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/evalloop/evalloop/internal/eval"
	"github.com/evalloop/evalloop/internal/logging"
)

// The UI serves localized labels; Ukrainian shows up alongside English
// depending on the account's locale.
var (
	sourcesButtonLabels = []string{"Sources", "Джерела"}
	citationHeaders     = []string{"Цитати", "Citations", "Джерела", "Цитування"}
)

var urlPattern = regexp.MustCompile(`https?://[^\s)]+`)

// extractCitations opens the sources panel for the latest response and
// pulls the cited links out of it. No panel or no links means no
// citations; extraction never fails the evaluation.
func extractCitations(page playwright.Page) []eval.Citation {
	button := findSourcesButton(page)
	if button == nil {
		return nil
	}

	asidesBefore, _ := page.Locator("aside").Count()

	if err := button.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(5000),
	}); err != nil {
		logging.Warnf("Opening sources panel failed: %v", err)
		return nil
	}
	page.WaitForTimeout(3000)

	panel := findCitationsPanel(page, asidesBefore)
	if panel == nil {
		closePanel(page)
		return nil
	}

	// Panel content streams in after the panel itself.
	if err := panel.Locator("a").First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(5000),
	}); err != nil {
		page.WaitForTimeout(2000)
	}

	citations := extractFromPanel(panel)
	closePanel(page)

	if len(citations) == 0 {
		logging.Warn("No sources extracted")
	}
	return citations
}

func findSourcesButton(page playwright.Page) playwright.Locator {
	for _, label := range sourcesButtonLabels {
		btn := page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: label})
		if n, err := btn.Count(); err == nil && n > 0 {
			return btn.Last()
		}
	}

	fallback := page.Locator(`button:has-text("Джерела"), button:has-text("Sources")`)
	if n, err := fallback.Count(); err == nil && n > 0 {
		return fallback.Last()
	}
	return nil
}

// findCitationsPanel locates the sources panel while steering clear of
// the navigation sidebar, which is also an aside.
func findCitationsPanel(page playwright.Page, asidesBefore int) playwright.Locator {
	if panel := findByCSSStructure(page); panel != nil {
		return panel
	}
	if panel := findByContentStructure(page); panel != nil {
		return panel
	}

	// Wait briefly for a new aside to attach.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if n, err := page.Locator("aside").Count(); err == nil && n > asidesBefore {
			break
		}
		page.WaitForTimeout(250)
	}

	asides, err := page.Locator("aside").All()
	if err != nil {
		return nil
	}

	for _, aside := range asides {
		text, err := aside.InnerText()
		if err != nil {
			continue
		}
		if strings.Contains(text, "New chat") || strings.Contains(text, "Library") {
			continue
		}
		if html, err := aside.InnerHTML(); err == nil {
			if strings.Contains(html, "create-new-chat-button") || strings.Contains(html, "sidebar-item-library") {
				continue
			}
		}

		// The citations panel docks on the right.
		box, err := aside.BoundingBox()
		if err != nil || box == nil || box.X <= 600 || len(text) <= 50 {
			continue
		}
		if containsAny(text, citationHeaders) || strings.Contains(text, "http") || len(text) > 100 {
			return aside
		}
	}

	if len(asides) > 0 {
		last := asides[len(asides)-1]
		if text, err := last.InnerText(); err == nil && !strings.Contains(text, "New chat") {
			return last
		}
	}
	return nil
}

func findByCSSStructure(page playwright.Page) playwright.Locator {
	containers, err := page.Locator("div.bg-token-bg-primary.flex.w-full.flex-col").All()
	if err != nil {
		return nil
	}
	for _, container := range containers {
		text, err := container.InnerText()
		if err != nil || !containsAny(text, citationHeaders) {
			continue
		}
		if n, err := container.Locator(`a[target="_blank"][href^="http"]`).Count(); err == nil && n >= 2 {
			return container
		}
	}
	return nil
}

func findByContentStructure(page playwright.Page) playwright.Locator {
	divs, err := page.Locator("div").All()
	if err != nil {
		return nil
	}
	for _, div := range divs {
		text, err := div.InnerText(playwright.LocatorInnerTextOptions{Timeout: playwright.Float(500)})
		if err != nil || !containsAny(text, citationHeaders) {
			continue
		}
		if n, err := div.Locator(`a[target="_blank"][href^="http"]`).Count(); err == nil && n >= 2 {
			return div
		}
	}
	return nil
}

// extractFromPanel tries the structured list first, then progressively
// looser link selectors, and finally scans the panel text.
func extractFromPanel(panel playwright.Locator) []eval.Citation {
	if citations := extractFromListStructure(panel); len(citations) > 0 {
		return citations
	}

	linkSelectors := []string{
		`a[href^="http"]`,
		`a[target="_blank"]`,
		`a[href*="utm_source=chatgpt"]`,
		`ul a[href^="http"]`,
		`a[href]`,
		`a`,
		`li a, [role="listitem"] a`,
		`[href], [role="link"]`,
	}
	for _, selector := range linkSelectors {
		links, err := panel.Locator(selector).All()
		if err != nil || len(links) == 0 {
			continue
		}
		if citations := parseLinks(links); len(citations) > 0 {
			return citations
		}
	}

	text, err := panel.InnerText()
	if err != nil {
		return nil
	}
	return parseCitationText(text)
}

// extractFromListStructure handles the canonical ul > li > a markup
// where each link wraps name/title/description divs.
func extractFromListStructure(panel playwright.Locator) []eval.Citation {
	linkPatterns := []string{
		`ul > li > a[href^="http"]`,
		`a[target="_blank"]`,
		`a[href*="utm_source=chatgpt"]`,
		`ul a[href^="http"]`,
	}

	var links []playwright.Locator
	for _, pattern := range linkPatterns {
		found, err := panel.Locator(pattern).All()
		if err == nil && len(found) > 0 {
			links = found
			break
		}
	}
	if len(links) == 0 {
		return nil
	}

	var citations []eval.Citation
	for idx, link := range links {
		url, err := link.GetAttribute("href")
		if err != nil {
			continue
		}

		var parts []string
		if divs, err := link.Locator("div").All(); err == nil {
			for _, div := range divs {
				text, err := div.InnerText(playwright.LocatorInnerTextOptions{Timeout: playwright.Float(500)})
				if err != nil {
					continue
				}
				text = strings.TrimSpace(text)
				if text != "" && !strings.HasPrefix(text, "http") && len(text) > 1 {
					parts = append(parts, text)
				}
			}
		}
		if len(parts) > 3 {
			parts = parts[:3]
		}
		text := strings.Join(parts, " - ")
		if text == "" {
			text = fmt.Sprintf("Source %d", idx+1)
		}

		citations = append(citations, eval.Citation{URL: url, Text: text, Number: idx + 1})
	}
	return citations
}

func parseLinks(links []playwright.Locator) []eval.Citation {
	var citations []eval.Citation
	for idx, link := range links {
		url, err := link.GetAttribute("href")
		if err != nil {
			continue
		}
		text, err := link.InnerText()
		if err != nil {
			continue
		}
		citations = append(citations, eval.Citation{
			URL:    resolveURL(url),
			Text:   citationName(text),
			Number: idx + 1,
		})
	}
	return citations
}

// resolveURL absolutizes panel-relative links.
func resolveURL(url string) string {
	if url == "" || strings.HasPrefix(url, "http") {
		return url
	}
	if strings.HasPrefix(url, "/") {
		return "https://chatgpt.com" + url
	}
	return url
}

// citationName takes the first line of a link's text, truncated.
func citationName(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 100 {
		text = text[:97] + "..."
	}
	return text
}

// parseCitationText is the last-resort extractor: scan the panel text
// for URLs and pair each with the nearest preceding short line as its
// name.
func parseCitationText(text string) []eval.Citation {
	urls := urlPattern.FindAllStringIndex(text, -1)
	if len(urls) == 0 {
		return nil
	}

	var citations []eval.Citation
	for idx, span := range urls {
		url := text[span[0]:span[1]]
		name := fmt.Sprintf("Source %d", idx+1)

		before := strings.TrimSpace(text[max(0, span[0]-150):span[0]])
		if lines := strings.Split(before, "\n"); len(lines) > 0 {
			candidate := strings.TrimSpace(lines[len(lines)-1])
			if candidate != "" && len(candidate) < 100 {
				name = candidate
			}
		}

		citations = append(citations, eval.Citation{URL: url, Text: name, Number: idx + 1})
	}
	return citations
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func closePanel(page playwright.Page) {
	if err := page.Keyboard().Press("Escape"); err == nil {
		page.WaitForTimeout(500)
	}
}
