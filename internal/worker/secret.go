package worker

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// Secret verifies the shared worker secret carried by scheduler pushes.
// Retired secrets stay valid through their bcrypt hashes until removed from
// configuration, so pushes already queued at the bridge survive a rotation.
type Secret struct {
	current  []byte
	previous [][]byte
}

// maxPrevious bounds the bcrypt work a wrong secret can trigger.
const maxPrevious = 2

// NewSecret keeps at most two non-empty retired hashes; extra ones are
// ignored.
func NewSecret(current string, previousHashes []string) *Secret {
	s := &Secret{current: []byte(current)}
	for _, h := range previousHashes {
		if h != "" && len(s.previous) < maxPrevious {
			s.previous = append(s.previous, []byte(h))
		}
	}
	return s
}

// Verify reports whether supplied matches the current secret or a retired one.
// An empty value never matches.
func (s *Secret) Verify(supplied string) bool {
	if supplied == "" || len(s.current) == 0 {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(supplied), s.current) == 1 {
		return true
	}
	for _, h := range s.previous {
		if bcrypt.CompareHashAndPassword(h, []byte(supplied)) == nil {
			return true
		}
	}
	return false
}

// Value returns the current secret for embedding in outgoing pushes.
func (s *Secret) Value() string {
	return string(s.current)
}
