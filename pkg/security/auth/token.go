package auth

import (
	"crypto/subtle"
	"errors"
	"sync"
)

// ErrInvalidToken is returned for an unknown token.
var ErrInvalidToken = errors.New("invalid token")

// Token is a named bearer token granting access to the admin endpoint.
type Token struct {
	Name  string
	Value string
}

// TokenValidator checks bearer tokens against a fixed set.
type TokenValidator struct {
	mu     sync.RWMutex
	tokens []Token
}

// NewTokenValidator creates a validator. Tokens with an empty value are
// ignored.
func NewTokenValidator(tokens []Token) *TokenValidator {
	v := &TokenValidator{}
	v.Replace(tokens)
	return v
}

// Validate returns the token matching value. Every configured token is
// compared in constant time.
func (v *TokenValidator) Validate(value string) (Token, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var (
		match Token
		found bool
	)
	for _, t := range v.tokens {
		if subtle.ConstantTimeCompare([]byte(t.Value), []byte(value)) == 1 {
			match, found = t, true
		}
	}
	if !found || value == "" {
		return Token{}, ErrInvalidToken
	}
	return match, nil
}

// Replace swaps the token set.
func (v *TokenValidator) Replace(tokens []Token) {
	kept := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Value != "" {
			kept = append(kept, t)
		}
	}

	v.mu.Lock()
	v.tokens = kept
	v.mu.Unlock()
}

// Len returns the number of configured tokens.
func (v *TokenValidator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.tokens)
}
