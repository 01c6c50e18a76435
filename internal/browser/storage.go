package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// StateInfo summarizes a storage-state file without interpreting its
// contents, enough for listing sessions and spotting stale ones.
type StateInfo struct {
	Cookies int
	Origins int

	// EarliestExpiry is the soonest cookie expiry, zero when every
	// cookie is a session cookie.
	EarliestExpiry time.Time
}

type storageState struct {
	Cookies []struct {
		Name    string  `json:"name"`
		Domain  string  `json:"domain"`
		Expires float64 `json:"expires"`
	} `json:"cookies"`
	Origins []json.RawMessage `json:"origins"`
}

// InspectStorageState reads and summarizes a Playwright storage-state
// file. A file that does not parse is reported as an error rather than
// an empty summary so stale or truncated sessions surface early.
func InspectStorageState(path string) (StateInfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return StateInfo{}, fmt.Errorf("read storage state: %w", err)
	}

	var state storageState
	if err := json.Unmarshal(raw, &state); err != nil {
		return StateInfo{}, fmt.Errorf("parse storage state %s: %w", path, err)
	}

	info := StateInfo{
		Cookies: len(state.Cookies),
		Origins: len(state.Origins),
	}
	for _, c := range state.Cookies {
		// -1 and 0 mark session cookies in the Playwright format.
		if c.Expires <= 0 {
			continue
		}
		expiry := time.Unix(int64(c.Expires), 0)
		if info.EarliestExpiry.IsZero() || expiry.Before(info.EarliestExpiry) {
			info.EarliestExpiry = expiry
		}
	}
	return info, nil
}
