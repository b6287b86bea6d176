// Package repository defines the storage capability implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/borga/internal/model"
)

// Store owns users, bearer tokens and per-user groups of game ids.
// Every backend must honor the same semantics: missing parameters fail with errs.ErrMissingParam,
// parent existence is checked before children (user, then group, then game) and fails with
// errs.ErrNotFound.
type Store interface {
	// HasUser reports whether username exists.
	HasUser(ctx context.Context, username string) (bool, error)
	// HasGroup reports whether the user's group exists. Unknown user is NOT_FOUND.
	HasGroup(ctx context.Context, username, groupID string) (bool, error)
	// HasGame reports whether gameID is a member of the group. Unknown user or group is NOT_FOUND.
	HasGame(ctx context.Context, username, groupID, gameID string) (bool, error)

	// CreateUser persists the user, its token and an empty group collection.
	// A taken username is ALREADY_EXISTS; partial backend failure is EXT_SVC_FAILURE.
	CreateUser(ctx context.Context, u model.User, token string) error
	// GetUser loads a user (with credentials) by username.
	GetUser(ctx context.Context, username string) (model.User, error)
	// TokenToUsername resolves a token. A miss returns "" and a nil error.
	TokenToUsername(ctx context.Context, token string) (string, error)
	// UsernameToToken returns the user's live token.
	UsernameToToken(ctx context.Context, username string) (string, error)

	// CreateGroup creates an empty group and returns its id.
	CreateGroup(ctx context.Context, username, name, description string) (string, error)
	// LoadGroup returns one group.
	LoadGroup(ctx context.Context, username, groupID string) (model.Group, error)
	// EditGroup replaces name and description.
	EditGroup(ctx context.Context, username, groupID, name, description string) error
	// DeleteGroup removes a group.
	DeleteGroup(ctx context.Context, username, groupID string) error
	// ListAllGroups returns every group of the user.
	ListAllGroups(ctx context.Context, username string) ([]model.Group, error)

	// AddGame appends gameID. Already present is ALREADY_EXISTS.
	AddGame(ctx context.Context, username, groupID, gameID string) error
	// RemoveGame removes gameID. Absent is NOT_FOUND.
	RemoveGame(ctx context.Context, username, groupID, gameID string) error

	// Ping checks backend reachability.
	Ping(ctx context.Context) error
}

// MaxIDAttempts bounds group id generation retries on collision.
const MaxIDAttempts = 3
