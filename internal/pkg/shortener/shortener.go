package shortener

import (
	"crypto/rand"
	"fmt"
)

// CodeAlphabet leaves out 0, 1, I and O so codes survive being read aloud or
// retyped. Lower-case input is upper-cased before lookup.
const CodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// GenerateCode creates a cryptographically secure random code over
// CodeAlphabet.
func GenerateCode(length int) (string, error) {
	return generate(CodeAlphabet, length)
}

func generate(alphabet string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length: %d", length)
	}

	// Rejection sampling to avoid modulo bias.
	maxRandomByte := 256 - 256%len(alphabet)

	code := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if int(b) >= maxRandomByte {
				continue
			}
			code[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(code), nil
}
