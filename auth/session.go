package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"messaging-core/domain"
	"messaging-core/errors"
)

const sessionKeyPrefix = "session:"

// sessionRecord is the shape the identity platform writes when it opens an
// ambient (CSRF-style) session for a logged-in user.
type sessionRecord struct {
	UserID   int64 `json:"user_id"`
	TenantID int64 `json:"tenant_id"`
}

// SessionValidator is the fallback authentication strategy: the credential
// is looked up as an ambient session bound to the currently resolved
// identity, stored in Redis by the identity platform.
type SessionValidator struct {
	rdb *redis.Client
}

func NewSessionValidator(rdb *redis.Client) *SessionValidator {
	return &SessionValidator{rdb: rdb}
}

func (v *SessionValidator) Validate(ctx context.Context, credential string) (domain.Identity, error) {
	raw, err := v.rdb.Get(ctx, sessionKeyPrefix+credential).Result()
	if err == redis.Nil {
		return domain.Identity{}, errors.ErrSessionNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("session lookup: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.Identity{}, fmt.Errorf("session record decode: %w", err)
	}
	if rec.UserID == 0 {
		return domain.Identity{}, errors.ErrSessionNotFound
	}
	return domain.Identity{UserID: rec.UserID, TenantID: rec.TenantID}, nil
}
