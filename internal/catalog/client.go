// Package catalog is a client for the external board game catalog (Board Game Atlas API shape).
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/and161185/borga/internal/errs"
	"github.com/and161185/borga/internal/model"
)

// DefaultBaseURL is the public catalog API root.
const DefaultBaseURL = "https://api.boardgameatlas.com/api"

const maxBodyBytes = 4 << 20

// Config configures the catalog client.
type Config struct {
	BaseURL  string
	ClientID string
	Timeout  time.Duration
	// HTTPClient overrides the default client (Timeout is ignored then).
	HTTPClient *http.Client
}

// Client queries the catalog. It does not cache and does not retry.
type Client struct {
	http     *http.Client
	baseURL  string
	clientID string
	log      *zap.Logger
}

// New constructs a catalog client.
func New(cfg Config, log *zap.Logger) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:     hc,
		baseURL:  strings.TrimRight(base, "/"),
		clientID: cfg.ClientID,
		log:      log,
	}
}

// Search finds games by name, ordered by upstream rank.
func (c *Client) Search(ctx context.Context, query string) ([]model.Game, error) {
	if query == "" {
		return nil, errs.MissingParam("query")
	}
	c.log.Debug("catalog search", zap.String("query", query))
	res, err := c.fetch(ctx, "/search", url.Values{"name": {query}, "order_by": {"rank"}})
	if err != nil {
		return nil, err
	}
	games, err := gamesOf(res)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, errs.NotFound("no games found for query '%s'", query)
	}
	out := make([]model.Game, 0, len(games))
	for _, g := range games {
		out = append(out, makeGame(g))
	}
	return out, nil
}

// Popular lists the most popular games, rank 1 first.
func (c *Client) Popular(ctx context.Context) ([]model.Game, error) {
	c.log.Debug("catalog popular")
	res, err := c.fetch(ctx, "/search", url.Values{"order_by": {"rank"}})
	if err != nil {
		return nil, err
	}
	games, err := gamesOf(res)
	if err != nil {
		return nil, err
	}
	out := make([]model.Game, 0, len(games))
	for _, g := range games {
		out = append(out, makeGame(g))
	}
	sort.SliceStable(out, func(i, j int) bool { return rankLess(out[i].Rank, out[j].Rank) })
	return out, nil
}

// GameByID returns the base record of one game.
func (c *Client) GameByID(ctx context.Context, id string) (model.Game, error) {
	info, err := c.gameInfo(ctx, id)
	if err != nil {
		return model.Game{}, err
	}
	return makeGame(info), nil
}

// GameDetails returns the game with mechanics, categories, year and description.
// The detail record references taxonomy by id only, so both vocabularies are fetched and filtered.
func (c *Client) GameDetails(ctx context.Context, id string) (model.Game, error) {
	info, err := c.gameInfo(ctx, id)
	if err != nil {
		return model.Game{}, err
	}
	mechanics, err := c.vocabulary(ctx, "/game/mechanics", "mechanics")
	if err != nil {
		return model.Game{}, err
	}
	categories, err := c.vocabulary(ctx, "/game/categories", "categories")
	if err != nil {
		return model.Game{}, err
	}

	g := makeGame(info)
	g.Mechanics = filterTaxa(mechanics, info.Get("mechanics.#.id"))
	g.Categories = filterTaxa(categories, info.Get("categories.#.id"))
	g.YearPublished = int(info.Get("year_published").Int())
	g.Description = strings.TrimSpace(info.Get("description_preview").String())
	return g, nil
}

func (c *Client) gameInfo(ctx context.Context, id string) (gjson.Result, error) {
	if id == "" {
		return gjson.Result{}, errs.MissingParam("id")
	}
	c.log.Debug("catalog game", zap.String("id", id))
	res, err := c.fetch(ctx, "/search", url.Values{"ids": {id}, "limit": {"1"}})
	if err != nil {
		return gjson.Result{}, err
	}
	games, err := gamesOf(res)
	if err != nil {
		return gjson.Result{}, err
	}
	if len(games) == 0 {
		return gjson.Result{}, errs.NotFound("game '%s' was not found", id)
	}
	return games[0], nil
}

func (c *Client) vocabulary(ctx context.Context, path, key string) ([]model.Taxon, error) {
	c.log.Debug("catalog vocabulary", zap.String("path", path))
	res, err := c.fetch(ctx, path, url.Values{})
	if err != nil {
		return nil, err
	}
	list := res.Get(key)
	if !list.IsArray() {
		return nil, errs.ExtSvcFailure("missing '%s' in catalog response", key)
	}
	var out []model.Taxon
	for _, t := range list.Array() {
		out = append(out, model.Taxon{
			ID:   t.Get("id").String(),
			Name: t.Get("name").String(),
			URL:  t.Get("url").String(),
		})
	}
	return out, nil
}

// fetch performs one GET and classifies the outcome.
func (c *Client) fetch(ctx context.Context, path string, params url.Values) (gjson.Result, error) {
	params.Set("client_id", c.clientID)
	u := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return gjson.Result{}, errs.Wrap(errs.KindFailure, err, nil)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("catalog request failed", zap.String("path", path), zap.Error(err))
		return gjson.Result{}, errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if !gjson.ValidBytes(body) {
			return gjson.Result{}, errs.ExtSvcFailure("malformed catalog response from %s", path)
		}
		return gjson.ParseBytes(body), nil
	case resp.StatusCode >= 500:
		c.log.Warn("catalog server error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		var info any
		if err := json.Unmarshal(body, &info); err != nil {
			info = fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return gjson.Result{}, errs.New(errs.KindExtSvcFailure, info)
	default:
		return gjson.Result{}, errs.Failure("catalog responded %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
}

func gamesOf(res gjson.Result) ([]gjson.Result, error) {
	games := res.Get("games")
	if !games.IsArray() {
		return nil, errs.ExtSvcFailure("missing 'games' in catalog response")
	}
	return games.Array(), nil
}

func makeGame(g gjson.Result) model.Game {
	return model.Game{
		ID:          g.Get("id").String(),
		Name:        g.Get("name").String(),
		URL:         g.Get("url").String(),
		ImageURL:    g.Get("image_url").String(),
		Rank:        int(g.Get("rank").Int()),
		Description: g.Get("description").String(),
	}
}

// filterTaxa keeps vocabulary entries referenced by ids, in vocabulary order.
func filterTaxa(vocab []model.Taxon, ids gjson.Result) []model.Taxon {
	want := make(map[string]struct{})
	for _, id := range ids.Array() {
		want[id.String()] = struct{}{}
	}
	var out []model.Taxon
	for _, t := range vocab {
		if _, ok := want[t.ID]; ok {
			out = append(out, t)
		}
	}
	return out
}

// rankLess orders by ascending rank with unranked (<= 0) entries last.
func rankLess(a, b int) bool {
	switch {
	case a <= 0:
		return false
	case b <= 0:
		return true
	default:
		return a < b
	}
}
