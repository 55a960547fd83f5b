package internal

import (
	"bytes"
	"testing"
)

func TestNewOTPLengthAndAlphabet(t *testing.T) {
	for _, digits := range []int{4, 6, 10} {
		code, err := NewOTP(nil, digits)
		if err != nil {
			t.Fatalf("NewOTP(%d): %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("expected %d digits, got %q", digits, code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in %q", code)
			}
		}
	}
}

func TestNewOTPKeepsLeadingZeros(t *testing.T) {
	code, err := NewOTP(bytes.NewReader(make([]byte, 64)), 6)
	if err != nil {
		t.Fatalf("NewOTP: %v", err)
	}
	if code != "000000" {
		t.Fatalf("expected all-zero code from zero reader, got %q", code)
	}
}

func TestNewOTPRejectsBadDigits(t *testing.T) {
	for _, digits := range []int{0, 3, 11} {
		if _, err := NewOTP(nil, digits); err == nil {
			t.Fatalf("expected error for %d digits", digits)
		}
	}
}

func TestNewOTPPropagatesReaderError(t *testing.T) {
	if _, err := NewOTP(bytes.NewReader(nil), 6); err == nil {
		t.Fatal("expected exhausted reader to fail")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("123456", "123456") {
		t.Fatal("expected equal codes to match")
	}
	if ConstantTimeEqual("123456", "123457") || ConstantTimeEqual("123456", "12345") || ConstantTimeEqual("", "1") {
		t.Fatal("expected different codes not to match")
	}
}
