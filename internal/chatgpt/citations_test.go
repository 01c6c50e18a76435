package chatgpt

import (
	"os"
	"strings"
	"testing"

	"github.com/evalloop/evalloop/internal/logging"
)

func TestMain(m *testing.M) {
	logging.Disable()
	os.Exit(m.Run())
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://example.com/a", "https://example.com/a"},
		{"http://example.com", "http://example.com"},
		{"/c/abc123", "https://chatgpt.com/c/abc123"},
		{"", ""},
		{"mailto:x@y.z", "mailto:x@y.z"},
	}
	for _, tt := range tests {
		if got := resolveURL(tt.in); got != tt.want {
			t.Errorf("resolveURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCitationName(t *testing.T) {
	if got := citationName("Example Site\nSome long description"); got != "Example Site" {
		t.Errorf("citationName should keep the first line, got %q", got)
	}

	long := strings.Repeat("x", 150)
	got := citationName(long)
	if len(got) != 100 || !strings.HasSuffix(got, "...") {
		t.Errorf("long names should truncate to 100 with ellipsis, got %d chars", len(got))
	}

	if got := citationName("  padded  "); got != "padded" {
		t.Errorf("citationName should trim, got %q", got)
	}
}

func TestParseCitationText(t *testing.T) {
	text := "Citations\nExample News\nhttps://example.com/story\nAnother Site\nhttps://other.example.org/page?id=1\n"

	citations := parseCitationText(text)
	if len(citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(citations))
	}
	if citations[0].URL != "https://example.com/story" || citations[0].Text != "Example News" {
		t.Errorf("first citation = %+v", citations[0])
	}
	if citations[1].Text != "Another Site" {
		t.Errorf("second citation name = %q, want nearest preceding line", citations[1].Text)
	}
	if citations[0].Number != 1 || citations[1].Number != 2 {
		t.Errorf("citation numbers should follow extraction order")
	}
}

func TestParseCitationTextNoURLs(t *testing.T) {
	if citations := parseCitationText("nothing linked here"); citations != nil {
		t.Errorf("expected nil, got %+v", citations)
	}
}

func TestParseCitationTextFallbackName(t *testing.T) {
	citations := parseCitationText("https://example.com/bare")
	if len(citations) != 1 || citations[0].Text != "Source 1" {
		t.Errorf("bare URL should get a numbered fallback name, got %+v", citations)
	}
}

func TestContainsAny(t *testing.T) {
	if !containsAny("panel with Citations inside", citationHeaders) {
		t.Error("should match English header")
	}
	if !containsAny("Джерела", citationHeaders) {
		t.Error("should match localized header")
	}
	if containsAny("plain text", citationHeaders) {
		t.Error("should not match")
	}
}
