package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/spf13/cobra"

	"github.com/evalloop/evalloop/internal/browser"
	"github.com/evalloop/evalloop/internal/chatgpt"
)

var (
	sessionOutput  string
	sessionForce   bool
	sessionTimeout time.Duration
	sessionListDir string
)

// SessionsCmd groups the session-file tooling.
func SessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage browser session files",
		Long: `Session files are Playwright storage states captured after a manual
ChatGPT login. The evaluation loop rotates through every file in the
sessions directory; create one file per account to spread load.`,
	}

	cmd.AddCommand(sessionsCreateCmd())
	cmd.AddCommand(sessionsListCmd())
	return cmd
}

func sessionsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Capture a session by logging in manually",
		Long: `Create opens a visible browser on chatgpt.com, waits for you to log
in, and saves the authenticated state to a file the run command can
load. Repeat with different --output names for each account.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return createSession(sessionOutput, sessionForce, sessionTimeout)
		},
	}

	cmd.Flags().StringVarP(&sessionOutput, "output", "o", "sessions/session.json", "where to save the captured session")
	cmd.Flags().BoolVar(&sessionForce, "force", false, "overwrite an existing session file")
	cmd.Flags().DurationVar(&sessionTimeout, "timeout", 10*time.Minute, "how long to wait for the manual login")
	return cmd
}

func createSession(output string, force bool, timeout time.Duration) error {
	if _, err := os.Stat(output); err == nil && !force {
		return fmt.Errorf("session file %s already exists (use --force to overwrite)", output)
	}

	pw, err := browser.Runtime()
	if err != nil {
		return err
	}
	defer browser.Shutdown()

	// Capture is always headed; the whole point is a human at the keyboard.
	sess, err := browser.Launch(pw, browser.LaunchOptions{
		Headless:          false,
		NavigationTimeout: time.Minute,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	page := sess.Page()
	if _, err := page.Goto(chatgpt.BaseURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("open %s: %w", chatgpt.BaseURL, err)
	}

	fmt.Println("Log in to ChatGPT in the browser window.")
	fmt.Printf("The session saves automatically once you finish (up to %v).\n", timeout)

	if !chatgpt.WaitForManualLogin(page, timeout) {
		return fmt.Errorf("login was not completed")
	}
	if !chatgpt.FinishCapture(page) {
		return fmt.Errorf("chat interface did not become ready after login")
	}

	if dir := filepath.Dir(output); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create sessions directory: %w", err)
		}
	}
	if err := sess.SaveStorageState(output); err != nil {
		return err
	}

	fmt.Printf("Session saved to %s\n", output)
	fmt.Printf("Run it with: evalloop run --sessions %s\n", filepath.Dir(output))
	return nil
}

func sessionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List captured sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := sessionListDir
			if dir == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dir = cfg.Sessions.Dir
			}
			return listSessions(dir)
		},
	}

	cmd.Flags().StringVar(&sessionListDir, "dir", "", "sessions directory (default: from config)")
	return cmd
}

func listSessions(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Printf("No sessions in %s. Create one with: evalloop sessions create\n", dir)
		return nil
	}
	sort.Strings(paths)

	fmt.Printf("%-20s %8s %8s  %s\n", "SESSION", "COOKIES", "ORIGINS", "EXPIRES")
	for _, path := range paths {
		id := strings.TrimSuffix(filepath.Base(path), ".json")

		info, err := browser.InspectStorageState(path)
		if err != nil {
			fmt.Printf("%-20s unreadable: %v\n", id, err)
			continue
		}

		expires := "session only"
		if !info.EarliestExpiry.IsZero() {
			expires = info.EarliestExpiry.Format("2006-01-02")
			if info.EarliestExpiry.Before(time.Now()) {
				expires += " (expired)"
			}
		}
		fmt.Printf("%-20s %8d %8d  %s\n", id, info.Cookies, info.Origins, expires)
	}
	return nil
}
