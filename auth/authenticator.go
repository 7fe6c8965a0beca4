// Package auth resolves connection credentials to identities.
// It tries a structured signed token first and falls back to an ambient
// session lookup; the caller only ever observes authenticated or not.
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"messaging-core/contract"
	"messaging-core/domain"
)

var errPanicked = fmt.Errorf("credential strategy panicked")

// Authenticator validates the opaque credential presented at connection
// time. Both strategies are optional: a nil validator is treated as
// "strategy unavailable, try the next one".
type Authenticator struct {
	log     *slog.Logger
	token   contract.CredentialValidator
	session contract.CredentialValidator
}

func NewAuthenticator(log *slog.Logger, token, session contract.CredentialValidator) *Authenticator {
	return &Authenticator{log: log, token: token, session: session}
}

// Authenticate returns the first strategy that succeeds. An empty
// credential fails immediately without touching any backend. Strategy
// errors (including panics) count as a failed validation for that
// strategy and never propagate to the caller.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (domain.Identity, bool) {
	if credential == "" {
		return domain.Identity{}, false
	}

	for _, strategy := range []struct {
		name      string
		validator contract.CredentialValidator
	}{
		{"token", a.token},
		{"session", a.session},
	} {
		if strategy.validator == nil {
			continue
		}
		identity, err := a.tryValidate(ctx, strategy.validator, credential)
		if err != nil {
			a.log.Debug("Credential strategy failed", "strategy", strategy.name, "error", err)
			continue
		}
		return identity, true
	}
	return domain.Identity{}, false
}

// tryValidate shields the authenticator from a misbehaving strategy:
// a panic inside a validator is downgraded to a failed validation.
func (a *Authenticator) tryValidate(ctx context.Context, v contract.CredentialValidator, credential string) (identity domain.Identity, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Warn("Credential strategy panicked", "panic", r)
			identity = domain.Identity{}
			err = errPanicked
		}
	}()
	return v.Validate(ctx, credential)
}
