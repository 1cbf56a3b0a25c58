package controller

import "testing"

func TestNormalizeNSESymbol(t *testing.T) {
	cases := map[string]string{
		"reliance": "RELIANCE",
		"INFY-EQ":  "INFY",
		"Tcs-BE":   "TCS",
		" hdfc ":   "HDFC",
		"":         "",
	}

	for input, expected := range cases {
		if got := NormalizeNSESymbol(input); got != expected {
			t.Fatalf("expected %q to normalize to %q, got %q", input, expected, got)
		}
	}
}

func TestPercentOfFloatSafeClampsRange(t *testing.T) {
	if got := PercentOfFloatSafe(200, 50); got != 100 {
		t.Fatalf("expected 100, got %v", got)
	}
	if got := PercentOfFloatSafe(200, 0); got != 2 {
		t.Fatalf("expected clamp to 1%%, got %v", got)
	}
	if got := PercentOfFloatSafe(200, 150); got != 200 {
		t.Fatalf("expected clamp to 100%%, got %v", got)
	}
}
