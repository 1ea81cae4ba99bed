package prescription

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

const (
	// TokenLength is the number of symbols in an issued token.
	TokenLength = 6
	// TokenAlphabet holds the 36 symbols a token is drawn from.
	TokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	maxTokenAttempts = 16
)

// ErrTokenSpaceExhausted is returned when every candidate drawn collides with
// a token already in use.
var ErrTokenSpaceExhausted = errors.New("could not generate an unused token")

// TokenGenerator draws tokens from a non-cryptographic source. Tokens are
// short lookup keys, not secrets.
type TokenGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewTokenGenerator(seed int64) *TokenGenerator {
	return &TokenGenerator{rnd: rand.New(rand.NewSource(seed))}
}

func defaultGenerator() *TokenGenerator {
	return NewTokenGenerator(time.Now().UnixNano())
}

// Next returns one candidate token.
func (g *TokenGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := make([]byte, TokenLength)
	for i := range b {
		b[i] = TokenAlphabet[g.rnd.Intn(len(TokenAlphabet))]
	}
	return string(b)
}

// Unused draws candidates until inUse reports false for one, giving up after
// a bounded number of attempts.
func (g *TokenGenerator) Unused(inUse func(string) bool) (string, error) {
	for i := 0; i < maxTokenAttempts; i++ {
		tok := g.Next()
		if inUse == nil || !inUse(tok) {
			return tok, nil
		}
	}
	return "", ErrTokenSpaceExhausted
}
