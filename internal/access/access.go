// Package access gates snippet reads and writes with hashed secrets and
// enforces the payload size limit.
//
// WHY BCRYPT?
// bcrypt is a password hashing function specifically designed to be slow.
// That slowness is a security feature: it makes brute-force attacks
// expensive. bcrypt also generates and embeds a random salt per hash, so
// two snippets protected by the same secret store different hashes, and
// verification is constant-time with respect to the stored hash.
//
// bcrypt is CPU-bound (~250ms at cost 12). Callers on hot paths should not
// hold locks across Hash/Verify calls; the Go scheduler parks the goroutine
// on its own OS thread, so concurrent I/O is unaffected.
package access

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/codether/codether/internal/apperror"
	"github.com/codether/codether/internal/model"
)

// defaultCost is the bcrypt work factor. Cost 12 takes roughly ~250ms on a
// modern server — negligible for a create/update, brutal for an attacker.
const defaultCost = 12

// Guard hashes and verifies snippet secrets and checks payload sizes.
//
// It's a struct (not free functions) so the bcrypt cost and size limit can
// be injected — tests use cost 4 (the bcrypt minimum) to avoid ~250ms per
// hashing operation.
type Guard struct {
	cost     int
	maxBytes int64
}

// NewGuard creates a Guard with the default bcrypt cost and the given
// content size limit in bytes.
func NewGuard(maxBytes int64) *Guard {
	return &Guard{cost: defaultCost, maxBytes: maxBytes}
}

// NewGuardForTest creates a Guard with a custom bcrypt cost. Do NOT use in
// production — cost 4 is far too weak.
func NewGuardForTest(cost int, maxBytes int64) *Guard {
	return &Guard{cost: cost, maxBytes: maxBytes}
}

// MaxBytes returns the configured content size limit.
func (g *Guard) MaxBytes() int64 {
	return g.maxBytes
}

// HashSecret hashes a plaintext secret for storage.
//
// An empty string is normalized to "no secret": it returns "", nil and the
// caller persists an absent hash. Hashing "" would silently create a
// snippet that *looks* protected but accepts the empty secret.
func (g *Guard) HashSecret(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if len(plaintext) > 72 {
		// bcrypt silently truncates inputs longer than 72 bytes. Reject
		// them explicitly so callers aren't surprised.
		return "", apperror.ValidationFailed("secret", "must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), g.cost)
	if err != nil {
		return "", fmt.Errorf("access: hashing secret: %w", err)
	}
	return string(hashed), nil
}

// VerifyView checks read access to a snippet.
//
// Returns nil for snippets without a view secret regardless of the
// supplied value — public snippets ignore stray secrets.
func (g *Guard) VerifyView(s *model.Snippet, secret string) error {
	if !s.HasViewSecret() {
		return nil
	}
	if secret == "" {
		return apperror.ViewSecretRequired()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.ViewSecretHash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return apperror.InvalidSecret("view")
		}
		return fmt.Errorf("access: comparing view secret: %w", err)
	}
	return nil
}

// VerifyEdit checks write access to a snippet.
//
// A snippet with no edit secret can never be updated: EditSecretNotSet is
// returned before any comparison, regardless of what the caller supplied.
func (g *Guard) VerifyEdit(s *model.Snippet, secret string) error {
	if !s.HasEditSecret() {
		return apperror.EditSecretNotSet()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.EditSecretHash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return apperror.InvalidSecret("edit")
		}
		return fmt.Errorf("access: comparing edit secret: %w", err)
	}
	return nil
}

// CheckSize rejects content strictly greater than the limit.
// Exactly the limit is accepted.
func (g *Guard) CheckSize(size int64) error {
	if size > g.maxBytes {
		return apperror.SizeExceeded(size, g.maxBytes)
	}
	return nil
}
