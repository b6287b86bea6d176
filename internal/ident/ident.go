// Package ident generates bearer tokens and group identifiers.
package ident

import (
	"encoding/base64"
	"fmt"

	"github.com/gofrs/uuid/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	groupIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	groupIDLen      = 16
)

// NewToken returns an opaque bearer token: a random v4 UUID, url-safe base64 without padding.
func NewToken() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(id.Bytes()), nil
}

// NewGroupID returns 16 random alphanumeric characters.
func NewGroupID() (string, error) {
	id, err := gonanoid.Generate(groupIDAlphabet, groupIDLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate group id: %w", err)
	}
	return id, nil
}
