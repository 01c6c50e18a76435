package eval

import "testing"

func TestHasCitations(t *testing.T) {
	var nilAnswer *Answer
	if nilAnswer.HasCitations() {
		t.Error("nil answer should have no citations")
	}

	empty := &Answer{Response: "some text"}
	if empty.HasCitations() {
		t.Error("answer without citations should report false")
	}

	with := &Answer{
		Response:  "some text",
		Citations: []Citation{{URL: "https://example.com", Text: "Example"}},
	}
	if !with.HasCitations() {
		t.Error("answer with citations should report true")
	}
}

func TestOutcomeConstructors(t *testing.T) {
	answer := &Answer{
		Response:  "response body",
		Citations: []Citation{{URL: "https://example.com", Text: "Example"}},
	}

	ok := NewSuccess("p1", answer, 2)
	if !ok.Success || ok.Attempts != 2 || ok.Response != "response body" {
		t.Errorf("unexpected success outcome: %+v", ok)
	}
	if len(ok.Citations) != 1 || ok.Timestamp.IsZero() {
		t.Errorf("success outcome missing citations or timestamp: %+v", ok)
	}

	bad := NewFailure("p2", 4, "no citations after retries")
	if bad.Success || bad.Response != "" || bad.Attempts != 4 {
		t.Errorf("unexpected failure outcome: %+v", bad)
	}
	if bad.Error != "no citations after retries" {
		t.Errorf("failure outcome lost its reason: %q", bad.Error)
	}
}
