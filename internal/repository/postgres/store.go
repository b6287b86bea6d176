package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/borga/internal/errs"
	"github.com/and161185/borga/internal/ident"
	"github.com/and161185/borga/internal/model"
	"github.com/and161185/borga/internal/repository"
)

// Store implements repository.Store using PostgreSQL.
type Store struct {
	db    *DB
	newID func() (string, error)
}

var _ repository.Store = (*Store)(nil)

// NewStore constructs a store over an open pool. The schema comes from the embedded migrations.
func NewStore(db *DB) *Store { return &Store{db: db, newID: ident.NewGroupID} }

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Pool.Ping(ctx); err != nil {
		return dbErr("ping", err)
	}
	return nil
}

// HasUser reports whether username exists.
func (s *Store) HasUser(ctx context.Context, username string) (bool, error) {
	if err := errs.Require("username", username); err != nil {
		return false, err
	}
	return s.userExists(ctx, username)
}

// HasGroup reports whether the user's group exists.
func (s *Store) HasGroup(ctx context.Context, username, groupID string) (bool, error) {
	if err := errs.Require("username", username, "groupId", groupID); err != nil {
		return false, err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return false, err
	}
	return s.groupExists(ctx, username, groupID)
}

// HasGame reports whether gameID belongs to the group.
func (s *Store) HasGame(ctx context.Context, username, groupID, gameID string) (bool, error) {
	if err := errs.Require("username", username, "groupId", groupID, "gameId", gameID); err != nil {
		return false, err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return false, err
	}
	const q = `SELECT $3::text = ANY(game_ids) FROM groups WHERE username=$1 AND id=$2`
	var found bool
	err := s.db.Pool.QueryRow(ctx, q, username, groupID, gameID).Scan(&found)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, errs.NotFound("group '%s' was not found", groupID)
	case err != nil:
		return false, dbErr("has game", err)
	}
	return found, nil
}

// CreateUser inserts the user and its token in one transaction.
func (s *Store) CreateUser(ctx context.Context, u model.User, token string) (err error) {
	if err := errs.Require("username", u.Username, "name", u.Name, "token", token); err != nil {
		return err
	}
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return dbErr("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = dbErr("commit", e)
		}
	}()

	const insUser = `
INSERT INTO users (username, name, pwd_hash, salt)
VALUES ($1, $2, $3, $4)`
	if _, err = tx.Exec(ctx, insUser, u.Username, u.Name, u.PwdHash, u.Salt); err != nil {
		if isUniqueViolation(err) {
			return errs.AlreadyExists("user '%s' already exists", u.Username)
		}
		return dbErr("insert user", err)
	}
	const insToken = `INSERT INTO tokens (token, username) VALUES ($1, $2)`
	if _, err = tx.Exec(ctx, insToken, token, u.Username); err != nil {
		if isUniqueViolation(err) {
			return errs.AlreadyExists("token already in use")
		}
		return dbErr("insert token", err)
	}
	return nil
}

// GetUser selects a user by username.
func (s *Store) GetUser(ctx context.Context, username string) (model.User, error) {
	if err := errs.Require("username", username); err != nil {
		return model.User{}, err
	}
	const q = `SELECT name, pwd_hash, salt FROM users WHERE username=$1`
	u := model.User{Username: username}
	err := s.db.Pool.QueryRow(ctx, q, username).Scan(&u.Name, &u.PwdHash, &u.Salt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return model.User{}, errs.NotFound("user '%s' was not found", username)
	case err != nil:
		return model.User{}, dbErr("get user", err)
	}
	return u, nil
}

// TokenToUsername resolves a token; a miss is ("", nil).
func (s *Store) TokenToUsername(ctx context.Context, token string) (string, error) {
	if err := errs.Require("token", token); err != nil {
		return "", err
	}
	const q = `SELECT username FROM tokens WHERE token=$1`
	var username string
	err := s.db.Pool.QueryRow(ctx, q, token).Scan(&username)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", nil
	case err != nil:
		return "", dbErr("token lookup", err)
	}
	return username, nil
}

// UsernameToToken returns the user's token.
func (s *Store) UsernameToToken(ctx context.Context, username string) (string, error) {
	if err := errs.Require("username", username); err != nil {
		return "", err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return "", err
	}
	const q = `SELECT token FROM tokens WHERE username=$1`
	var token string
	err := s.db.Pool.QueryRow(ctx, q, username).Scan(&token)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", errs.Failure("failed to find token for '%s'", username)
	case err != nil:
		return "", dbErr("token lookup", err)
	}
	return token, nil
}

// CreateGroup inserts an empty group, retrying on id collision.
func (s *Store) CreateGroup(ctx context.Context, username, name, description string) (string, error) {
	if err := errs.Require("username", username, "name", name, "description", description); err != nil {
		return "", err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return "", err
	}
	const q = `
INSERT INTO groups (username, id, name, description)
VALUES ($1, $2, $3, $4)`
	for attempt := 0; attempt < repository.MaxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return "", errs.Wrap(errs.KindFailure, err, nil)
		}
		_, err = s.db.Pool.Exec(ctx, q, username, id, name, description)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return "", dbErr("insert group", err)
		}
		return id, nil
	}
	return "", errs.Failure("failed to allocate a group id for '%s'", username)
}

// LoadGroup selects one group.
func (s *Store) LoadGroup(ctx context.Context, username, groupID string) (model.Group, error) {
	if err := errs.Require("username", username, "groupId", groupID); err != nil {
		return model.Group{}, err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return model.Group{}, err
	}
	const q = `SELECT name, description, game_ids FROM groups WHERE username=$1 AND id=$2`
	g := model.Group{ID: groupID}
	err := s.db.Pool.QueryRow(ctx, q, username, groupID).Scan(&g.Name, &g.Description, &g.GameIDs)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return model.Group{}, errs.NotFound("group '%s' was not found", groupID)
	case err != nil:
		return model.Group{}, dbErr("load group", err)
	}
	if g.GameIDs == nil {
		g.GameIDs = []string{}
	}
	return g, nil
}

// EditGroup replaces name and description.
func (s *Store) EditGroup(ctx context.Context, username, groupID, name, description string) error {
	if err := errs.Require("username", username, "groupId", groupID, "name", name, "description", description); err != nil {
		return err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return err
	}
	const q = `UPDATE groups SET name=$3, description=$4 WHERE username=$1 AND id=$2`
	tag, err := s.db.Pool.Exec(ctx, q, username, groupID, name, description)
	if err != nil {
		return dbErr("edit group", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("group '%s' was not found", groupID)
	}
	return nil
}

// DeleteGroup removes a group.
func (s *Store) DeleteGroup(ctx context.Context, username, groupID string) error {
	if err := errs.Require("username", username, "groupId", groupID); err != nil {
		return err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return err
	}
	const q = `DELETE FROM groups WHERE username=$1 AND id=$2`
	tag, err := s.db.Pool.Exec(ctx, q, username, groupID)
	if err != nil {
		return dbErr("delete group", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("group '%s' was not found", groupID)
	}
	return nil
}

// ListAllGroups returns the user's groups in creation order.
func (s *Store) ListAllGroups(ctx context.Context, username string) ([]model.Group, error) {
	if err := errs.Require("username", username); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return nil, err
	}
	const q = `SELECT id, name, description, game_ids FROM groups WHERE username=$1 ORDER BY seq`
	rows, err := s.db.Pool.Query(ctx, q, username)
	if err != nil {
		return nil, dbErr("list groups", err)
	}
	defer rows.Close()

	out := []model.Group{}
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.GameIDs); err != nil {
			return nil, dbErr("list groups", err)
		}
		if g.GameIDs == nil {
			g.GameIDs = []string{}
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list groups", err)
	}
	return out, nil
}

// AddGame appends gameID unless already present. The guard runs inside the UPDATE.
func (s *Store) AddGame(ctx context.Context, username, groupID, gameID string) error {
	if err := errs.Require("username", username, "groupId", groupID, "gameId", gameID); err != nil {
		return err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return err
	}
	const q = `
UPDATE groups SET game_ids = array_append(game_ids, $3::text)
WHERE username=$1 AND id=$2 AND NOT ($3::text = ANY(game_ids))`
	tag, err := s.db.Pool.Exec(ctx, q, username, groupID, gameID)
	if err != nil {
		return dbErr("add game", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	ok, err := s.groupExists(ctx, username, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound("group '%s' was not found", groupID)
	}
	return errs.AlreadyExists("game '%s' already exists", gameID)
}

// RemoveGame removes gameID if present.
func (s *Store) RemoveGame(ctx context.Context, username, groupID, gameID string) error {
	if err := errs.Require("username", username, "groupId", groupID, "gameId", gameID); err != nil {
		return err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return err
	}
	const q = `
UPDATE groups SET game_ids = array_remove(game_ids, $3::text)
WHERE username=$1 AND id=$2 AND $3::text = ANY(game_ids)`
	tag, err := s.db.Pool.Exec(ctx, q, username, groupID, gameID)
	if err != nil {
		return dbErr("remove game", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	ok, err := s.groupExists(ctx, username, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound("group '%s' was not found", groupID)
	}
	return errs.NotFound("game '%s' was not found", gameID)
}

func (s *Store) userExists(ctx context.Context, username string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM users WHERE username=$1)`
	var ok bool
	if err := s.db.Pool.QueryRow(ctx, q, username).Scan(&ok); err != nil {
		return false, dbErr("user lookup", err)
	}
	return ok, nil
}

func (s *Store) requireUser(ctx context.Context, username string) error {
	ok, err := s.userExists(ctx, username)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound("user '%s' was not found", username)
	}
	return nil
}

func (s *Store) groupExists(ctx context.Context, username, groupID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM groups WHERE username=$1 AND id=$2)`
	var ok bool
	if err := s.db.Pool.QueryRow(ctx, q, username, groupID).Scan(&ok); err != nil {
		return false, dbErr("group lookup", err)
	}
	return ok, nil
}

// dbErr classifies a driver failure. Cancellation is a FAILURE that still matches the context error.
func dbErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindFailure, err, nil)
	}
	return errs.Wrap(errs.KindExtSvcFailure, fmt.Errorf("postgres %s: %w", op, err), nil)
}
