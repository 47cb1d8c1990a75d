// Package secret holds client credentials in locked, wipeable memory.
//
// A Password is created from the raw bytes a client sent; those bytes are
// wiped on construction. Whoever holds the Password owns it and must call
// Wipe once the credential has been checked.
package secret

import (
	"crypto/subtle"
	"errors"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/bcrypt"
)

// ErrWiped is returned when a wiped Password is used.
var ErrWiped = errors.New("secret: password already wiped")

// ErrMismatch is returned when a password does not match a hash.
var ErrMismatch = errors.New("secret: password mismatch")

// Password is a credential stored in a memguard LockedBuffer.
type Password struct {
	mu    sync.Mutex
	buf   *memguard.LockedBuffer
	wiped bool
}

// NewPassword takes ownership of raw and wipes it.
func NewPassword(raw []byte) *Password {
	return &Password{buf: memguard.NewBufferFromBytes(raw)}
}

// FromString copies s into locked memory. The string itself cannot be wiped;
// prefer NewPassword when the caller has a byte slice.
func FromString(s string) *Password {
	return NewPassword([]byte(s))
}

// Len returns the credential length, or 0 once wiped.
func (p *Password) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wiped {
		return 0
	}
	return p.buf.Size()
}

// With calls fn with the plaintext. fn must not retain the slice.
func (p *Password) With(fn func([]byte) error) error {
	if p == nil {
		return ErrWiped
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wiped {
		return ErrWiped
	}
	return fn(p.buf.Bytes())
}

// VerifyBcrypt compares the credential with a bcrypt hash.
func (p *Password) VerifyBcrypt(hash string) error {
	return p.With(func(b []byte) error {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), b); err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return ErrMismatch
			}
			return err
		}
		return nil
	})
}

// Equal compares with other in constant time.
func (p *Password) Equal(other []byte) bool {
	ok := false
	_ = p.With(func(b []byte) error {
		ok = subtle.ConstantTimeCompare(b, other) == 1
		return nil
	})
	return ok
}

// HashBcrypt returns a bcrypt hash of the credential.
func (p *Password) HashBcrypt(cost int) (string, error) {
	var out string
	err := p.With(func(b []byte) error {
		h, err := bcrypt.GenerateFromPassword(b, cost)
		if err != nil {
			return err
		}
		out = string(h)
		return nil
	})
	return out, err
}

// Wipe destroys the buffer. Safe to call more than once and on nil.
func (p *Password) Wipe() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wiped {
		return
	}
	p.buf.Destroy()
	p.wiped = true
}

// Wiped reports whether Wipe ran.
func (p *Password) Wiped() bool {
	if p == nil {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wiped
}

// String never reveals the credential.
func (p *Password) String() string { return "[REDACTED]" }

// GoString keeps %#v from printing the buffer.
func (p *Password) GoString() string { return "secret.Password{[REDACTED]}" }
