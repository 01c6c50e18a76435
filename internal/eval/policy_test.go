package eval

import "testing"

func TestDecide(t *testing.T) {
	tests := []struct {
		name          string
		attemptNumber int
		maxAttempts   int
		hasCitations  bool
		rotationUsed  bool
		want          Verdict
	}{
		{"citations on first attempt", 1, 3, true, false, Succeed},
		{"citations on last attempt", 3, 3, true, false, Succeed},
		{"citations on rotated attempt", 4, 3, true, true, Succeed},
		{"no citations, attempts remain", 1, 3, false, false, RetrySameSession},
		{"no citations, one before limit", 2, 3, false, false, RetrySameSession},
		{"limit reached, rotation unused", 3, 3, false, false, RotateAndRetry},
		{"limit reached, rotation used", 3, 3, false, true, GiveUp},
		{"rotated attempt failed", 4, 3, false, true, GiveUp},
		{"single attempt budget, rotation unused", 1, 1, false, false, RotateAndRetry},
		{"single attempt budget, rotation used", 1, 1, false, true, GiveUp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.attemptNumber, tt.maxAttempts, tt.hasCitations, tt.rotationUsed)
			if got != tt.want {
				t.Errorf("Decide(%d, %d, %v, %v) = %v, want %v",
					tt.attemptNumber, tt.maxAttempts, tt.hasCitations, tt.rotationUsed, got, tt.want)
			}
		})
	}
}

func TestDecideRetriesBelowLimit(t *testing.T) {
	// Every attempt before the limit retries on the same session,
	// regardless of how large the budget is.
	for max := 1; max <= 10; max++ {
		for n := 1; n < max; n++ {
			if got := Decide(n, max, false, false); got != RetrySameSession {
				t.Fatalf("Decide(%d, %d, false, false) = %v, want RetrySameSession", n, max, got)
			}
		}
	}
}

func TestVerdictString(t *testing.T) {
	if Succeed.String() != "succeed" || GiveUp.String() != "give-up" {
		t.Errorf("unexpected verdict names: %v %v", Succeed, GiveUp)
	}
	if Verdict(99).String() != "unknown" {
		t.Errorf("out-of-range verdict should stringify as unknown")
	}
}
