package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"dds-go/internal/dds"
	"dds-go/internal/model"
)

// DukeService resolves user agents from HS256-signed access tokens issued
// by the Duke identity provider.
type DukeService struct {
	service *model.AuthenticationService
	secret  []byte
}

func NewDukeService(service *model.AuthenticationService, secret string) *DukeService {
	return &DukeService{service: service, secret: []byte(secret)}
}

// Service returns the persisted service row.
func (d *DukeService) Service() *model.AuthenticationService { return d.service }

// UserForAccessToken verifies the token and returns the matching user
// agent, looked up by the token's uid. When no agent exists yet, a new
// unsaved one is synthesized from the token claims; the caller decides
// whether to persist it.
func (d *DukeService) UserForAccessToken(ctx context.Context, db dds.Database, encoded string) (*model.Agent, error) {
	parsed, err := jwt.Parse(encoded, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return d.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidAccessToken
	}
	uid, _ := claims["uid"].(string)
	if uid == "" {
		return nil, ErrInvalidAccessToken
	}

	agent, err := db.FindAgentByUsername(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("finding user agent: %w", err)
	}
	if agent != nil {
		return agent, nil
	}

	claim := func(key string) string {
		s, _ := claims[key].(string)
		return s
	}
	return &model.Agent{
		Kind:        model.AgentUser,
		Username:    uid,
		Email:       claim("email"),
		DisplayName: claim("display_name"),
		FirstName:   claim("first_name"),
		LastName:    claim("last_name"),
	}, nil
}
