package lottery

import (
	"errors"
	"testing"
)

func TestCharIndex(t *testing.T) {
	t.Run("rejects bytes past the largest multiple", func(t *testing.T) {
		// 256 mod 10 = 6: bytes 250..255 would favor chars 0..5.
		for b := 250; b <= 255; b++ {
			if _, ok := charIndex(byte(b), 10); ok {
				t.Errorf("byte %d accepted for n=10", b)
			}
		}
		for b := 0; b < 250; b++ {
			idx, ok := charIndex(byte(b), 10)
			if !ok || idx != b%10 {
				t.Fatalf("byte %d: got (%d, %v)", b, idx, ok)
			}
		}
	})

	t.Run("rejects the biased tail for the alphanumeric sets", func(t *testing.T) {
		// 256 mod 36 = 4, 256 mod 62 = 8
		for _, tc := range []struct{ n, limit int }{{36, 252}, {62, 248}} {
			for b := 0; b < 256; b++ {
				_, ok := charIndex(byte(b), tc.n)
				if ok != (b < tc.limit) {
					t.Fatalf("n=%d byte=%d: accepted=%v", tc.n, b, ok)
				}
			}
		}
	})

	t.Run("power-of-two divisor accepts everything", func(t *testing.T) {
		for b := 0; b < 256; b++ {
			if _, ok := charIndex(byte(b), 64); !ok {
				t.Fatalf("byte %d rejected for n=64", b)
			}
		}
	})
}

func TestGenerateCode(t *testing.T) {
	for name, f := range codeFormats {
		t.Run(name, func(t *testing.T) {
			code, err := GenerateCode(f)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ok, err := ValidateCodeFormat(code, name)
			if err != nil || !ok {
				t.Fatalf("generated code %q does not match its own format", code)
			}
		})
	}
}

func TestGenerateBatch(t *testing.T) {
	t.Run("codes are unique and well formed", func(t *testing.T) {
		codes, err := GenerateBatch("8_digit_number", 500, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(codes) != 500 {
			t.Fatalf("expected 500 codes, got %d", len(codes))
		}
		seen := make(map[string]bool, len(codes))
		for _, code := range codes {
			if seen[code] {
				t.Fatalf("duplicate code %q in one batch", code)
			}
			seen[code] = true
			if ok, _ := ValidateCodeFormat(code, "8_digit_number"); !ok {
				t.Fatalf("code %q does not match format", code)
			}
		}
	})

	t.Run("avoids existing codes", func(t *testing.T) {
		// Reserve half the 4-digit keyspace and make sure new codes
		// stay out of it.
		existing := make([]string, 0, 5000)
		for i := 0; i < 5000; i++ {
			existing = append(existing, fmt4(i))
		}
		codes, err := GenerateBatch("4_digit_number", 50, existing)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		taken := make(map[string]bool, len(existing))
		for _, code := range existing {
			taken[code] = true
		}
		for _, code := range codes {
			if taken[code] {
				t.Fatalf("batch reused existing code %q", code)
			}
		}
	})

	t.Run("rejects requests beyond the keyspace", func(t *testing.T) {
		_, err := GenerateBatch("4_digit_number", 10001, nil)
		if !errors.Is(err, ErrInsufficientCodeSpace) {
			t.Fatalf("expected ErrInsufficientCodeSpace, got %v", err)
		}
	})

	t.Run("counts existing codes against the keyspace", func(t *testing.T) {
		existing := make([]string, 0, 9999)
		for i := 0; i < 9999; i++ {
			existing = append(existing, fmt4(i))
		}
		_, err := GenerateBatch("4_digit_number", 2, existing)
		if !errors.Is(err, ErrInsufficientCodeSpace) {
			t.Fatalf("expected ErrInsufficientCodeSpace, got %v", err)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := GenerateBatch("6_digit_hex", 10, nil)
		if !errors.Is(err, ErrUnknownCodeFormat) {
			t.Fatalf("expected ErrUnknownCodeFormat, got %v", err)
		}
	})

	t.Run("zero count", func(t *testing.T) {
		codes, err := GenerateBatch("8_digit_number", 0, nil)
		if err != nil || codes != nil {
			t.Fatalf("expected empty result, got %v err %v", codes, err)
		}
	})
}

func TestValidateCodeFormat(t *testing.T) {
	cases := []struct {
		code   string
		format string
		want   bool
	}{
		{"1234", "4_digit_number", true},
		{"123", "4_digit_number", false},
		{"12a4", "4_digit_number", false},
		{"abc12345", "8_digit_alphanumeric", true},
		{"ABC12345", "8_digit_alphanumeric", false},
		{"aB3dE6gH9jK2", "12_digit_alphanumeric", true},
	}
	for _, tc := range cases {
		got, err := ValidateCodeFormat(tc.code, tc.format)
		if err != nil {
			t.Fatalf("ValidateCodeFormat(%q, %q): %v", tc.code, tc.format, err)
		}
		if got != tc.want {
			t.Errorf("ValidateCodeFormat(%q, %q) = %v, want %v", tc.code, tc.format, got, tc.want)
		}
	}

	if _, err := ValidateCodeFormat("1234", "nope"); !errors.Is(err, ErrUnknownCodeFormat) {
		t.Errorf("expected ErrUnknownCodeFormat, got %v", err)
	}
}

func TestSupportedFormats(t *testing.T) {
	names := SupportedFormats()
	if len(names) != len(codeFormats) {
		t.Fatalf("expected %d formats, got %d", len(codeFormats), len(names))
	}
	for _, name := range names {
		if _, err := FormatByName(name); err != nil {
			t.Errorf("FormatByName(%q): %v", name, err)
		}
	}
}

// fmt4 zero-pads n to a 4 digit code.
func fmt4(n int) string {
	buf := []byte{'0', '0', '0', '0'}
	for i := 3; i >= 0 && n > 0; i-- {
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf)
}
