// Package browser owns the Playwright runtime and launches Chromium
// sessions restored from storage-state files. Everything site-specific
// lives above it (internal/chatgpt).
package browser

import (
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
)

var (
	// Playwright instance (singleton)
	pwOnce     sync.Once
	pwInstance *playwright.Playwright
	pwErr      error
)

// Runtime returns the singleton Playwright instance, installing the
// driver and browsers on first use. A failure here is sticky for the
// process lifetime.
func Runtime() (*playwright.Playwright, error) {
	pwOnce.Do(func() {
		if err := playwright.Install(); err != nil {
			pwErr = fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}

		pw, err := playwright.Run()
		if err != nil {
			pwErr = fmt.Errorf("failed to start playwright: %w", err)
			return
		}
		pwInstance = pw
	})

	return pwInstance, pwErr
}

// Shutdown stops the Playwright driver process. Only called at process
// exit; Runtime cannot be used afterwards.
func Shutdown() {
	if pwInstance != nil {
		_ = pwInstance.Stop()
	}
}
