package lottery

import (
	crand "crypto/rand"
	"math"
)

// CodeFormat declares the charset and fixed length of a redemption code.
type CodeFormat struct {
	Name    string
	Length  int
	Charset string
}

var codeFormats = map[string]CodeFormat{
	"4_digit_number":        {Name: "4_digit_number", Length: 4, Charset: "0123456789"},
	"8_digit_number":        {Name: "8_digit_number", Length: 8, Charset: "0123456789"},
	"8_digit_alphanumeric":  {Name: "8_digit_alphanumeric", Length: 8, Charset: "0123456789abcdefghijklmnopqrstuvwxyz"},
	"12_digit_number":       {Name: "12_digit_number", Length: 12, Charset: "0123456789"},
	"12_digit_alphanumeric": {Name: "12_digit_alphanumeric", Length: 12, Charset: "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"},
}

func FormatByName(name string) (CodeFormat, error) {
	f, ok := codeFormats[name]
	if !ok {
		return CodeFormat{}, ErrUnknownCodeFormat
	}
	return f, nil
}

// SupportedFormats lists the declared format names.
func SupportedFormats() []string {
	names := make([]string, 0, len(codeFormats))
	for name := range codeFormats {
		names = append(names, name)
	}
	return names
}

// charIndex maps one random byte onto [0, n). Bytes past the largest
// multiple of n are rejected, so no charset position is favored when 256
// does not divide evenly.
func charIndex(b byte, n int) (int, bool) {
	limit := 256 - 256%n
	if int(b) >= limit {
		return 0, false
	}
	return int(b) % n, true
}

// GenerateCode produces one random code from crypto-random bytes.
func GenerateCode(f CodeFormat) (string, error) {
	out := make([]byte, 0, f.Length)
	buf := make([]byte, f.Length)
	for len(out) < f.Length {
		if _, err := crand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			idx, ok := charIndex(b, len(f.Charset))
			if !ok {
				continue
			}
			out = append(out, f.Charset[idx])
			if len(out) == f.Length {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateBatch produces count fresh codes with no collisions against
// existing. Rather than loop forever on a tight keyspace it fails with
// ErrInsufficientCodeSpace, either up front when the keyspace cannot hold
// the request or after 10x count draw attempts.
func GenerateBatch(formatName string, count int, existing []string) ([]string, error) {
	f, err := FormatByName(formatName)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(existing)+count)
	for _, code := range existing {
		seen[code] = true
	}

	keyspace := math.Pow(float64(len(f.Charset)), float64(f.Length))
	if float64(len(seen)+count) > keyspace {
		return nil, ErrInsufficientCodeSpace
	}

	codes := make([]string, 0, count)
	maxAttempts := count * 10
	for attempts := 0; len(codes) < count && attempts < maxAttempts; attempts++ {
		code, err := GenerateCode(f)
		if err != nil {
			return nil, err
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	if len(codes) < count {
		return nil, ErrInsufficientCodeSpace
	}
	return codes, nil
}

// ValidateCodeFormat reports whether code matches the declared format.
func ValidateCodeFormat(code string, formatName string) (bool, error) {
	f, err := FormatByName(formatName)
	if err != nil {
		return false, err
	}
	if len(code) != f.Length {
		return false, nil
	}
	for i := 0; i < len(code); i++ {
		if !charsetContains(f.Charset, code[i]) {
			return false, nil
		}
	}
	return true, nil
}

func charsetContains(charset string, c byte) bool {
	for i := 0; i < len(charset); i++ {
		if charset[i] == c {
			return true
		}
	}
	return false
}
