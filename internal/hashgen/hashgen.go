// Package hashgen produces random fixed-alphabet strings.
//
// WHY crypto/rand AND NOT math/rand?
// Short ids are the only thing standing between the public and a snippet
// without a view secret. math/rand is seeded predictably and an attacker
// who recovers the seed can enumerate every id ever generated. crypto/rand
// costs a few hundred nanoseconds more per id and removes that class of
// attack entirely.
package hashgen

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Alphabet is the 62-character id alphabet: uppercase, lowercase, digits.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generator produces random strings over a fixed alphabet.
type Generator struct {
	alphabet string
}

// New creates a Generator over the standard 62-character alphabet.
func New() *Generator {
	return &Generator{alphabet: Alphabet}
}

// NewWithAlphabet creates a Generator over a custom alphabet. Used by tests
// to shrink the id space enough to force collisions and exhaustion.
func NewWithAlphabet(alphabet string) *Generator {
	if alphabet == "" {
		panic("hashgen: empty alphabet")
	}
	return &Generator{alphabet: alphabet}
}

// Generate returns a random string of exactly length characters.
//
// REJECTION SAMPLING:
// A naive `byte % 62` skews towards the first 8 characters of the alphabet
// because 256 is not a multiple of 62. We discard random bytes at or above
// the largest multiple of len(alphabet) below 256, so every character is
// exactly equally likely.
func (g *Generator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("hashgen: invalid length %d", length)
	}

	n := len(g.alphabet)
	// Largest multiple of n that fits in a byte.
	limit := byte(256 - (256 % n))

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := io.ReadFull(rand.Reader, buf); err != nil {
			return "", fmt.Errorf("hashgen: reading random bytes: %w", err)
		}
		for _, b := range buf {
			if limit != 0 && b >= limit {
				continue // would bias the distribution, resample
			}
			out = append(out, g.alphabet[int(b)%n])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}
