// Package auth checks the shared secret carried in every handler request.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/remitlab/sheetrelay/internal/logging"
	"github.com/remitlab/sheetrelay/internal/model"
)

// ErrUnauthorized is returned for a missing or wrong token.
var ErrUnauthorized = errors.New("Unauthorized: Invalid authentication token")

// Gate compares request tokens against one process-wide secret.
type Gate struct {
	secret string
}

// NewGate creates a Gate for secret.
func NewGate(secret string) *Gate {
	return &Gate{secret: secret}
}

// Check accepts token only if it is a non-empty string exactly equal to the
// secret. Numbers, booleans and other JSON values never match.
func (g *Gate) Check(ctx context.Context, token model.Cell) error {
	log := logging.FromContext(ctx)

	s, ok := token.Str()
	if !ok || s == "" || g.secret == "" {
		log.Warn("authentication failed", "reason", "missing token")
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s), []byte(g.secret)) != 1 {
		log.Warn("authentication failed", "reason", "token mismatch")
		return ErrUnauthorized
	}
	log.Debug("authentication succeeded")
	return nil
}
