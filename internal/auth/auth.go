// Package auth implements the authentication service family. Services are
// persisted rows with a type discriminator; legacy rows may be untyped
// until the reconciliation pass assigns the registered default.
package auth

import (
	"errors"
	"fmt"
)

// Concrete authentication service types.
const (
	TypeDuke   = "duke"
	TypeOpenid = "openid"
)

// ErrInvalidAccessToken marks a token that failed signature or shape
// verification.
var ErrInvalidAccessToken = errors.New("invalid access token")

// KnownType reports whether t names a concrete service type.
func KnownType(t string) bool {
	return t == TypeDuke || t == TypeOpenid
}

// ValidateType returns an error when t is neither empty nor a concrete
// service type.
func ValidateType(t string) error {
	if t == "" || KnownType(t) {
		return nil
	}
	return fmt.Errorf("unknown authentication service type: %s", t)
}
