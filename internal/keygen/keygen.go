// Package keygen produces unique short keys, either fully random or
// prefixed with a seed derived from the entity a link is attached to.
package keygen

import (
	"context"
	"fmt"

	"github.com/shammaa/url-shortener/internal/entity"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// maxAttempts bounds collision retries. Hitting the bound means the keyspace
// for the configured charset/length is saturated and the operator must widen it.
const maxAttempts = 100

// KeyChecker reports whether a key has ever been claimed, soft-deleted rows
// included. Key space is never reused once claimed.
type KeyChecker interface {
	KeyExists(ctx context.Context, key string) (bool, error)
}

// Generator draws random keys from a configured charset using gonanoid's
// crypto/rand source.
type Generator struct {
	checker      KeyChecker
	charset      string
	length       int
	prefixLength int
}

func New(checker KeyChecker, charset string, length, prefixLength int) *Generator {
	return &Generator{
		checker:      checker,
		charset:      charset,
		length:       length,
		prefixLength: prefixLength,
	}
}

// Generate returns customKey unchanged after verifying it is unclaimed, or
// draws random keys of the configured length until one is free. It returns
// entity.ErrKeyExists for a claimed custom key and entity.ErrKeyspaceExhausted
// when the attempt limit runs out.
func (g *Generator) Generate(ctx context.Context, customKey string) (string, error) {
	const op = "keygen.Generator.Generate"

	if customKey != "" {
		exists, err := g.checker.KeyExists(ctx, customKey)
		if err != nil {
			return "", fmt.Errorf("%s: failed to check custom key: %w", op, err)
		}
		if exists {
			return "", fmt.Errorf("%s: %q: %w", op, customKey, entity.ErrKeyExists)
		}

		return customKey, nil
	}

	return g.random(ctx, op, "", g.length)
}

// GeneratePrefixed returns a key of the form "<prefix>-<code>" where the code
// has the configured model key length. Collision handling matches Generate.
func (g *Generator) GeneratePrefixed(ctx context.Context, prefix string) (string, error) {
	const op = "keygen.Generator.GeneratePrefixed"

	return g.random(ctx, op, prefix+"-", g.prefixLength)
}

func (g *Generator) random(ctx context.Context, op, prefix string, length int) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		code, err := gonanoid.Generate(g.charset, length)
		if err != nil {
			return "", fmt.Errorf("%s: failed to generate key: %w", op, err)
		}

		key := prefix + code

		exists, err := g.checker.KeyExists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("%s: failed to check key: %w", op, err)
		}
		if !exists {
			return key, nil
		}
	}

	return "", fmt.Errorf("%s: after %d attempts: %w", op, maxAttempts, entity.ErrKeyspaceExhausted)
}
