// Package elastic implements repository.Store on top of an Elasticsearch document store.
//
// Layout per deployment prefix: <prefix>_users (doc id = username), <prefix>_tokens (doc id = token)
// and one <prefix>_<username>_groups index per user (doc id = group id).
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/and161185/borga/internal/errs"
	"github.com/and161185/borga/internal/ident"
	"github.com/and161185/borga/internal/model"
	"github.com/and161185/borga/internal/repository"
)

const (
	refreshWaitFor = "wait_for"

	// groupsMapping is applied when a user's groups index is created.
	groupsMapping = `{"mappings":{"properties":{"name":{"type":"text"},"description":{"type":"text"},"gameIds":{"type":"keyword"},"createdAt":{"type":"long"}}}}`

	addGameScript    = `if (ctx._source.gameIds.contains(params.gameId)) { ctx.op = 'noop' } else { ctx._source.gameIds.add(params.gameId) }`
	removeGameScript = `int i = ctx._source.gameIds.indexOf(params.gameId); if (i < 0) { ctx.op = 'noop' } else { ctx._source.gameIds.remove(i) }`
)

// Config configures the document-store adapter.
type Config struct {
	Prefix   string
	PageSize int // search page size; the store caps pages, 10 when unset
}

// Store implements repository.Store over Elasticsearch.
type Store struct {
	es       *elasticsearch.Client
	prefix   string
	pageSize int
	log      *zap.Logger

	newID func() (string, error)
}

var _ repository.Store = (*Store)(nil)

// NewClient builds an Elasticsearch client for the given node addresses.
func NewClient(addresses []string, username, password string) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
}

// New constructs the store.
func New(es *elasticsearch.Client, cfg Config, log *zap.Logger) *Store {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{es: es, prefix: cfg.Prefix, pageSize: cfg.PageSize, log: log, newID: ident.NewGroupID}
}

type userDoc struct {
	Name    string `json:"name"`
	PwdHash []byte `json:"pwdHash"`
	Salt    []byte `json:"salt"`
}

type tokenDoc struct {
	Username string `json:"username"`
}

type groupDoc struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	GameIDs     []string `json:"gameIds"`
	CreatedAt   int64    `json:"createdAt"`
}

type getResponse struct {
	ID     string          `json:"_id"`
	Found  bool            `json:"found"`
	Source json.RawMessage `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *Store) usersIndex() string  { return s.prefix + "_users" }
func (s *Store) tokensIndex() string { return s.prefix + "_tokens" }
func (s *Store) groupsIndex(username string) string {
	return s.prefix + "_" + strings.ToLower(username) + "_groups"
}

// Ping checks the cluster is reachable.
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	defer res.Body.Close()
	if res.IsError() {
		return unexpected("ping", res)
	}
	return nil
}

// HasUser reports whether username exists.
func (s *Store) HasUser(ctx context.Context, username string) (bool, error) {
	if err := errs.Require("username", username); err != nil {
		return false, err
	}
	return s.exists(ctx, s.usersIndex(), username)
}

// HasGroup reports whether the group exists.
func (s *Store) HasGroup(ctx context.Context, username, groupID string) (bool, error) {
	if err := errs.Require("username", username, "groupId", groupID); err != nil {
		return false, err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return false, err
	}
	return s.exists(ctx, s.groupsIndex(username), groupID)
}

// HasGame reports whether gameID is in the group.
func (s *Store) HasGame(ctx context.Context, username, groupID, gameID string) (bool, error) {
	if err := errs.Require("username", username, "groupId", groupID, "gameId", gameID); err != nil {
		return false, err
	}
	g, err := s.loadGroup(ctx, username, groupID)
	if err != nil {
		return false, err
	}
	return slices.Contains(g.GameIDs, gameID), nil
}

// CreateUser writes the groups index, then the token, then the user document. The user document is
// written last so a half-created user is never visible; on failure earlier writes are rolled back
// best-effort and the call may be retried.
func (s *Store) CreateUser(ctx context.Context, u model.User, token string) error {
	if err := errs.Require("username", u.Username, "name", u.Name, "token", token); err != nil {
		return err
	}
	exists, err := s.HasUser(ctx, u.Username)
	if err != nil {
		return err
	}
	if exists {
		return errs.AlreadyExists("user '%s' already exists", u.Username)
	}

	createdIndex, err := s.createIndex(ctx, s.groupsIndex(u.Username), groupsMapping)
	if err != nil {
		return err
	}
	rollback := func() {
		if createdIndex {
			s.deleteIndex(ctx, s.groupsIndex(u.Username))
		}
	}

	status, err := s.put(ctx, s.tokensIndex(), token, tokenDoc{Username: u.Username})
	if err != nil || status != http.StatusCreated {
		rollback()
		if status == http.StatusConflict {
			return errs.AlreadyExists("token already in use")
		}
		return createUserFailure(u.Username, err)
	}

	status, err = s.put(ctx, s.usersIndex(), u.Username, userDoc{Name: u.Name, PwdHash: u.PwdHash, Salt: u.Salt})
	if err != nil || status != http.StatusCreated {
		s.deleteDoc(ctx, s.tokensIndex(), token)
		if status == http.StatusConflict {
			// A concurrent signup won the user document and now owns the groups index.
			return errs.AlreadyExists("user '%s' already exists", u.Username)
		}
		rollback()
		return createUserFailure(u.Username, err)
	}
	return nil
}

func createUserFailure(username string, cause error) error {
	if cause != nil {
		return errs.Wrap(errs.KindExtSvcFailure, cause, fmt.Sprintf("failed to create user '%s'", username))
	}
	return errs.ExtSvcFailure("failed to create user '%s'", username)
}

// GetUser loads a user by username.
func (s *Store) GetUser(ctx context.Context, username string) (model.User, error) {
	if err := errs.Require("username", username); err != nil {
		return model.User{}, err
	}
	var doc userDoc
	found, err := s.get(ctx, s.usersIndex(), username, &doc)
	if err != nil {
		return model.User{}, err
	}
	if !found {
		return model.User{}, errs.NotFound("user '%s' was not found", username)
	}
	return model.User{Username: username, Name: doc.Name, PwdHash: doc.PwdHash, Salt: doc.Salt}, nil
}

// TokenToUsername resolves a token; a miss, or a token whose user is gone, is ("", nil).
func (s *Store) TokenToUsername(ctx context.Context, token string) (string, error) {
	if err := errs.Require("token", token); err != nil {
		return "", err
	}
	var doc tokenDoc
	found, err := s.get(ctx, s.tokensIndex(), token, &doc)
	if err != nil || !found || doc.Username == "" {
		return "", err
	}
	ok, err := s.HasUser(ctx, doc.Username)
	if err != nil || !ok {
		return "", err
	}
	return doc.Username, nil
}

// UsernameToToken scans token documents page by page until the user's token is found.
func (s *Store) UsernameToToken(ctx context.Context, username string) (string, error) {
	if err := errs.Require("username", username); err != nil {
		return "", err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return "", err
	}
	var token string
	err := s.scan(ctx, s.tokensIndex(), "", func(id string, src json.RawMessage) (bool, error) {
		var doc tokenDoc
		if err := json.Unmarshal(src, &doc); err != nil {
			return false, errs.Wrap(errs.KindExtSvcFailure, err, nil)
		}
		if doc.Username == username {
			token = id
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errs.Failure("failed to find token for '%s'", username)
	}
	return token, nil
}

// CreateGroup indexes an empty group, retrying on id collision.
func (s *Store) CreateGroup(ctx context.Context, username, name, description string) (string, error) {
	if err := errs.Require("username", username, "name", name, "description", description); err != nil {
		return "", err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return "", err
	}
	doc := groupDoc{Name: name, Description: description, GameIDs: []string{}, CreatedAt: time.Now().UnixNano()}
	for attempt := 0; attempt < repository.MaxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return "", errs.Wrap(errs.KindFailure, err, nil)
		}
		status, err := s.put(ctx, s.groupsIndex(username), id, doc)
		if err != nil {
			return "", err
		}
		switch status {
		case http.StatusCreated:
			return id, nil
		case http.StatusConflict:
			s.log.Warn("group id collision", zap.String("username", username), zap.String("groupId", id))
			continue
		default:
			return "", errs.ExtSvcFailure("failed to create group '%s' (status %d)", name, status)
		}
	}
	return "", errs.Failure("failed to allocate a group id for '%s'", username)
}

// LoadGroup returns one group.
func (s *Store) LoadGroup(ctx context.Context, username, groupID string) (model.Group, error) {
	if err := errs.Require("username", username, "groupId", groupID); err != nil {
		return model.Group{}, err
	}
	return s.loadGroup(ctx, username, groupID)
}

// EditGroup replaces name and description with a partial document update.
func (s *Store) EditGroup(ctx context.Context, username, groupID, name, description string) error {
	if err := errs.Require("username", username, "groupId", groupID, "name", name, "description", description); err != nil {
		return err
	}
	if err := s.requireGroup(ctx, username, groupID); err != nil {
		return err
	}
	body := map[string]any{"doc": map[string]string{"name": name, "description": description}}
	_, err := s.update(ctx, username, groupID, body)
	return err
}

// DeleteGroup removes a group document.
func (s *Store) DeleteGroup(ctx context.Context, username, groupID string) error {
	if err := errs.Require("username", username, "groupId", groupID); err != nil {
		return err
	}
	if err := s.requireGroup(ctx, username, groupID); err != nil {
		return err
	}
	res, err := s.es.Delete(s.groupsIndex(username), groupID,
		s.es.Delete.WithContext(ctx),
		s.es.Delete.WithRefresh(refreshWaitFor),
	)
	if err != nil {
		return errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return errs.NotFound("group '%s' was not found", groupID)
	default:
		return unexpected("delete group", res)
	}
}

// ListAllGroups pages through the user's groups until the declared total is reached.
func (s *Store) ListAllGroups(ctx context.Context, username string) ([]model.Group, error) {
	if err := errs.Require("username", username); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, username); err != nil {
		return nil, err
	}
	groups := []model.Group{}
	err := s.scan(ctx, s.groupsIndex(username), "createdAt", func(id string, src json.RawMessage) (bool, error) {
		var doc groupDoc
		if err := json.Unmarshal(src, &doc); err != nil {
			return false, errs.Wrap(errs.KindExtSvcFailure, err, nil)
		}
		groups = append(groups, doc.toModel(id))
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// AddGame appends gameID with a scripted update; the script refuses duplicates atomically.
func (s *Store) AddGame(ctx context.Context, username, groupID, gameID string) error {
	has, err := s.HasGame(ctx, username, groupID, gameID)
	if err != nil {
		return err
	}
	if has {
		return errs.AlreadyExists("game '%s' already exists", gameID)
	}
	result, err := s.update(ctx, username, groupID, script(addGameScript, gameID))
	if err != nil {
		return err
	}
	if result == "noop" {
		return errs.AlreadyExists("game '%s' already exists", gameID)
	}
	return nil
}

// RemoveGame removes gameID with a scripted update; the script is a no-op when it is absent.
func (s *Store) RemoveGame(ctx context.Context, username, groupID, gameID string) error {
	has, err := s.HasGame(ctx, username, groupID, gameID)
	if err != nil {
		return err
	}
	if !has {
		return errs.NotFound("game '%s' was not found", gameID)
	}
	result, err := s.update(ctx, username, groupID, script(removeGameScript, gameID))
	if err != nil {
		return err
	}
	if result == "noop" {
		return errs.NotFound("game '%s' was not found", gameID)
	}
	return nil
}

func script(source, gameID string) map[string]any {
	return map[string]any{
		"script": map[string]any{
			"source": source,
			"lang":   "painless",
			"params": map[string]string{"gameId": gameID},
		},
	}
}

func (d groupDoc) toModel(id string) model.Group {
	ids := d.GameIDs
	if ids == nil {
		ids = []string{}
	}
	return model.Group{ID: id, Name: d.Name, Description: d.Description, GameIDs: ids}
}

func (s *Store) requireUser(ctx context.Context, username string) error {
	ok, err := s.exists(ctx, s.usersIndex(), username)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound("user '%s' was not found", username)
	}
	return nil
}

func (s *Store) requireGroup(ctx context.Context, username, groupID string) error {
	ok, err := s.HasGroup(ctx, username, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound("group '%s' was not found", groupID)
	}
	return nil
}

func (s *Store) loadGroup(ctx context.Context, username, groupID string) (model.Group, error) {
	if err := s.requireUser(ctx, username); err != nil {
		return model.Group{}, err
	}
	var doc groupDoc
	found, err := s.get(ctx, s.groupsIndex(username), groupID, &doc)
	if err != nil {
		return model.Group{}, err
	}
	if !found {
		return model.Group{}, errs.NotFound("group '%s' was not found", groupID)
	}
	return doc.toModel(groupID), nil
}

func (s *Store) exists(ctx context.Context, index, id string) (bool, error) {
	res, err := s.es.Exists(index, id, s.es.Exists.WithContext(ctx))
	if err != nil {
		return false, errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, unexpected("exists "+index, res)
	}
}

func (s *Store) get(ctx context.Context, index, id string, dst any) (bool, error) {
	res, err := s.es.Get(index, id, s.es.Get.WithContext(ctx))
	if err != nil {
		return false, errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		return false, unexpected("get "+index, res)
	}
	var doc getResponse
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return false, errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	if !doc.Found {
		return false, nil
	}
	if err := json.Unmarshal(doc.Source, dst); err != nil {
		return false, errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	return true, nil
}

// put indexes a new document (op_type=create) and returns the HTTP status.
func (s *Store) put(ctx context.Context, index, id string, doc any) (int, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return 0, errs.Wrap(errs.KindFailure, err, nil)
	}
	res, err := s.es.Index(index, bytes.NewReader(body),
		s.es.Index.WithContext(ctx),
		s.es.Index.WithDocumentID(id),
		s.es.Index.WithOpType("create"),
		s.es.Index.WithRefresh(refreshWaitFor),
	)
	if err != nil {
		return 0, errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	return res.StatusCode, nil
}

// update applies a partial or scripted update and returns the result ("updated", "noop").
func (s *Store) update(ctx context.Context, username, groupID string, body any) (string, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return "", errs.Wrap(errs.KindFailure, err, nil)
	}
	res, err := s.es.Update(s.groupsIndex(username), groupID, bytes.NewReader(b),
		s.es.Update.WithContext(ctx),
		s.es.Update.WithRefresh(refreshWaitFor),
	)
	if err != nil {
		return "", errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", errs.NotFound("group '%s' was not found", groupID)
	default:
		return "", unexpected("update group", res)
	}
	var out struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	return out.Result, nil
}

// scan walks the index with from/size paging, ascending on sortField when set.
// visit returns false to stop early.
func (s *Store) scan(ctx context.Context, index, sortField string, visit func(id string, src json.RawMessage) (bool, error)) error {
	var query []byte
	if sortField != "" {
		b, err := json.Marshal(map[string]any{
			"sort": []any{map[string]any{sortField: map[string]string{"order": "asc", "unmapped_type": "long"}}},
		})
		if err != nil {
			return errs.Wrap(errs.KindFailure, err, nil)
		}
		query = b
	}
	from, seen := 0, 0
	for {
		opts := []func(*esapi.SearchRequest){
			s.es.Search.WithContext(ctx),
			s.es.Search.WithIndex(index),
			s.es.Search.WithFrom(from),
			s.es.Search.WithSize(s.pageSize),
		}
		if query != nil {
			opts = append(opts, s.es.Search.WithBody(bytes.NewReader(query)))
		}
		res, err := s.es.Search(opts...)
		if err != nil {
			return errs.Wrap(errs.KindExtSvcFailure, err, nil)
		}
		page, err := decodeSearch(res)
		if err != nil {
			return err
		}
		for _, hit := range page.Hits.Hits {
			more, err := visit(hit.ID, hit.Source)
			if err != nil || !more {
				return err
			}
		}
		seen += len(page.Hits.Hits)
		from += s.pageSize
		if len(page.Hits.Hits) == 0 || seen >= page.Hits.Total.Value {
			return nil
		}
	}
}

func decodeSearch(res *esapi.Response) (searchResponse, error) {
	defer res.Body.Close()
	var out searchResponse
	if res.StatusCode == http.StatusNotFound {
		return out, nil
	}
	if res.IsError() {
		return out, unexpected("search", res)
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return out, errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	return out, nil
}

// createIndex reports whether this call created the index; an existing index is not an error.
func (s *Store) createIndex(ctx context.Context, index, mapping string) (bool, error) {
	res, err := s.es.Indices.Create(index,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return false, errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return true, nil
	}
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode == http.StatusBadRequest && bytes.Contains(body, []byte("resource_already_exists_exception")) {
		return false, nil
	}
	return false, errs.ExtSvcFailure("failed to create index '%s' (status %d)", index, res.StatusCode)
}

func (s *Store) deleteIndex(ctx context.Context, index string) {
	res, err := s.es.Indices.Delete([]string{index}, s.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		s.log.Warn("rollback: delete index", zap.String("index", index), zap.Error(err))
		return
	}
	res.Body.Close()
}

func (s *Store) deleteDoc(ctx context.Context, index, id string) {
	res, err := s.es.Delete(index, id, s.es.Delete.WithContext(ctx), s.es.Delete.WithRefresh(refreshWaitFor))
	if err != nil {
		s.log.Warn("rollback: delete doc", zap.String("index", index), zap.Error(err))
		return
	}
	res.Body.Close()
}

// unexpected turns a non-success response into EXT_SVC_FAILURE with the body as info.
func unexpected(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var info any
	if err := json.Unmarshal(body, &info); err != nil || info == nil {
		info = strings.TrimSpace(string(body))
	}
	return errs.New(errs.KindExtSvcFailure, map[string]any{"op": op, "status": res.StatusCode, "response": info})
}
