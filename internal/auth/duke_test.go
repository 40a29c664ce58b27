package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dds-go/internal/auth"
	"dds-go/internal/model"
	"dds-go/internal/testutil"
)

const testSecret = "token-signing-secret"

func newDukeService() *auth.DukeService {
	return auth.NewDukeService(&model.AuthenticationService{
		ID:        "svc-1",
		ServiceID: "duke-shib",
		Name:      "Duke Shibboleth",
		Type:      auth.TypeDuke,
	}, testSecret)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return encoded
}

func TestDukeService_UserForAccessToken(t *testing.T) {
	t.Run("resolves existing agent by uid", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		ctx := context.Background()

		existing := &model.Agent{
			ID:          "agent-1",
			Kind:        model.AgentUser,
			Username:    "ksmith",
			DisplayName: "Kim Smith",
			CreatedAt:   time.Now().UTC(),
		}
		if err := db.CreateAgent(ctx, existing, nil); err != nil {
			t.Fatalf("CreateAgent() error = %v", err)
		}

		encoded := signToken(t, testSecret, jwt.MapClaims{"uid": "ksmith"})
		agent, err := newDukeService().UserForAccessToken(ctx, db, encoded)
		if err != nil {
			t.Fatalf("UserForAccessToken() error = %v", err)
		}
		if agent.ID != existing.ID {
			t.Errorf("agent ID = %q, want %q", agent.ID, existing.ID)
		}
	})

	t.Run("synthesizes unsaved agent from claims", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		encoded := signToken(t, testSecret, jwt.MapClaims{
			"uid":          "newuser",
			"email":        "newuser@duke.edu",
			"display_name": "New User",
			"first_name":   "New",
			"last_name":    "User",
		})
		agent, err := newDukeService().UserForAccessToken(context.Background(), db, encoded)
		if err != nil {
			t.Fatalf("UserForAccessToken() error = %v", err)
		}

		if agent.ID != "" {
			t.Errorf("agent ID = %q, want unsaved (empty)", agent.ID)
		}
		if agent.Kind != model.AgentUser {
			t.Errorf("Kind = %q, want user", agent.Kind)
		}
		if agent.Username != "newuser" {
			t.Errorf("Username = %q, want newuser", agent.Username)
		}
		if agent.Email != "newuser@duke.edu" {
			t.Errorf("Email = %q, want newuser@duke.edu", agent.Email)
		}
		if agent.DisplayName != "New User" {
			t.Errorf("DisplayName = %q, want New User", agent.DisplayName)
		}
	})

	t.Run("rejects token signed with another secret", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		encoded := signToken(t, "wrong-secret", jwt.MapClaims{"uid": "ksmith"})
		_, err := newDukeService().UserForAccessToken(context.Background(), db, encoded)
		if !errors.Is(err, auth.ErrInvalidAccessToken) {
			t.Fatalf("UserForAccessToken() error = %v, want ErrInvalidAccessToken", err)
		}
	})

	t.Run("rejects token without uid", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		encoded := signToken(t, testSecret, jwt.MapClaims{"email": "x@duke.edu"})
		_, err := newDukeService().UserForAccessToken(context.Background(), db, encoded)
		if !errors.Is(err, auth.ErrInvalidAccessToken) {
			t.Fatalf("UserForAccessToken() error = %v, want ErrInvalidAccessToken", err)
		}
	})

	t.Run("rejects garbage token", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		_, err := newDukeService().UserForAccessToken(context.Background(), db, "not.a.jwt")
		if !errors.Is(err, auth.ErrInvalidAccessToken) {
			t.Fatalf("UserForAccessToken() error = %v, want ErrInvalidAccessToken", err)
		}
	})
}

func TestValidateType(t *testing.T) {
	tests := []struct {
		name    string
		t       string
		wantErr bool
	}{
		{name: "empty is legacy untyped", t: ""},
		{name: "duke", t: auth.TypeDuke},
		{name: "openid", t: auth.TypeOpenid},
		{name: "unknown", t: "saml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateType(tt.t)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateType(%q) error = %v, wantErr %v", tt.t, err, tt.wantErr)
			}
		})
	}
}
