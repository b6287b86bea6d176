package elastic

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeES emulates the handful of Elasticsearch endpoints the store uses.
type fakeES struct {
	mu      sync.Mutex
	indices map[string]*fakeIndex
	// fail forces a status for requests whose "METHOD path" starts with the key.
	fail map[string]int
	// searches counts search requests per index.
	searches map[string]int
}

type fakeIndex struct {
	order []string
	docs  map[string]map[string]any
	// mappings holds field types, explicit from index creation or dynamic from indexed docs.
	mappings map[string]string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: map[string]map[string]any{}, mappings: map[string]string{}}
}

func newFakeES() *fakeES {
	return &fakeES{indices: map[string]*fakeIndex{}, fail: map[string]int{}, searches: map[string]int{}}
}

func newTestStore(t *testing.T, f *fakeES, pageSize int) *Store {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	es, err := NewClient([]string{srv.URL}, "", "")
	require.NoError(t, err)
	return New(es, Config{Prefix: "test", PageSize: pageSize}, zaptest.NewLogger(t))
}

// locked runs fn while holding the server lock.
func (f *fakeES) locked(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *fakeES) setFail(status int, prefixes ...string) {
	f.locked(func() {
		for _, p := range prefixes {
			if status == 0 {
				delete(f.fail, p)
				continue
			}
			f.fail[p] = status
		}
	})
}

func (f *fakeES) searchCount(index string) (n int) {
	f.locked(func() { n = f.searches[index] })
	return n
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	defer f.mu.Unlock()

	for prefix, status := range f.fail {
		if strings.HasPrefix(r.Method+" "+r.URL.Path, prefix) {
			reply(w, status, map[string]any{"error": "injected"})
			return
		}
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/":
		reply(w, http.StatusOK, map[string]any{"tagline": "You Know, for Search"})
	case len(parts) == 1 && r.Method == http.MethodPut:
		if _, ok := f.indices[parts[0]]; ok {
			reply(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"type": "resource_already_exists_exception"}})
			return
		}
		var body struct {
			Mappings struct {
				Properties map[string]struct {
					Type string `json:"type"`
				} `json:"properties"`
			} `json:"mappings"`
		}
		if raw, _ := io.ReadAll(r.Body); len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				reply(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
				return
			}
		}
		idx := newFakeIndex()
		for field, p := range body.Mappings.Properties {
			idx.mappings[field] = p.Type
		}
		f.indices[parts[0]] = idx
		reply(w, http.StatusOK, map[string]any{"acknowledged": true})
	case len(parts) == 1 && r.Method == http.MethodDelete:
		delete(f.indices, parts[0])
		reply(w, http.StatusOK, map[string]any{"acknowledged": true})
	case len(parts) == 2 && parts[1] == "_search":
		f.search(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "_doc":
		f.doc(w, r, parts[0], parts[2])
	case len(parts) == 3 && parts[1] == "_update":
		f.update(w, r, parts[0], parts[2])
	default:
		reply(w, http.StatusBadRequest, map[string]any{"error": "unsupported " + r.Method + " " + r.URL.Path})
	}
}

func (f *fakeES) doc(w http.ResponseWriter, r *http.Request, index, id string) {
	idx := f.indices[index]
	switch r.Method {
	case http.MethodHead, http.MethodGet:
		if idx == nil || idx.docs[id] == nil {
			reply(w, http.StatusNotFound, map[string]any{"_id": id, "found": false})
			return
		}
		reply(w, http.StatusOK, map[string]any{"_index": index, "_id": id, "found": true, "_source": idx.docs[id]})
	case http.MethodPut, http.MethodPost:
		if idx == nil {
			idx = newFakeIndex()
			f.indices[index] = idx
		}
		if _, ok := idx.docs[id]; ok && r.URL.Query().Get("op_type") == "create" {
			reply(w, http.StatusConflict, map[string]any{"error": map[string]any{"type": "version_conflict_engine_exception"}})
			return
		}
		var src map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&src); err != nil {
			reply(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		for field := range src {
			if _, ok := idx.mappings[field]; !ok {
				idx.mappings[field] = "dynamic"
			}
		}
		idx.docs[id] = src
		idx.order = append(idx.order, id)
		reply(w, http.StatusCreated, map[string]any{"_id": id, "result": "created"})
	case http.MethodDelete:
		if idx == nil || idx.docs[id] == nil {
			reply(w, http.StatusNotFound, map[string]any{"_id": id, "result": "not_found"})
			return
		}
		delete(idx.docs, id)
		idx.order = slices.DeleteFunc(idx.order, func(s string) bool { return s == id })
		reply(w, http.StatusOK, map[string]any{"_id": id, "result": "deleted"})
	}
}

func (f *fakeES) update(w http.ResponseWriter, r *http.Request, index, id string) {
	idx := f.indices[index]
	if idx == nil || idx.docs[id] == nil {
		reply(w, http.StatusNotFound, map[string]any{"error": map[string]any{"type": "document_missing_exception"}})
		return
	}
	var body struct {
		Doc    map[string]any `json:"doc"`
		Script *struct {
			Source string            `json:"source"`
			Params map[string]string `json:"params"`
		} `json:"script"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		reply(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	src := idx.docs[id]
	result := "updated"
	switch {
	case body.Doc != nil:
		for k, v := range body.Doc {
			src[k] = v
		}
	case body.Script != nil:
		gameID := body.Script.Params["gameId"]
		ids := toStrings(src["gameIds"])
		i := slices.Index(ids, gameID)
		switch body.Script.Source {
		case addGameScript:
			if i >= 0 {
				result = "noop"
			} else {
				ids = append(ids, gameID)
			}
		case removeGameScript:
			if i < 0 {
				result = "noop"
			} else {
				ids = slices.Delete(ids, i, i+1)
			}
		default:
			reply(w, http.StatusBadRequest, map[string]any{"error": "unknown script"})
			return
		}
		src["gameIds"] = ids
	}
	reply(w, http.StatusOK, map[string]any{"_id": id, "result": result})
}

func (f *fakeES) search(w http.ResponseWriter, r *http.Request, index string) {
	f.searches[index]++
	idx := f.indices[index]
	if idx == nil {
		reply(w, http.StatusNotFound, map[string]any{"error": map[string]any{"type": "index_not_found_exception"}})
		return
	}
	var body struct {
		Sort []map[string]struct {
			Order        string `json:"order"`
			UnmappedType string `json:"unmapped_type"`
		} `json:"sort"`
	}
	if raw, _ := io.ReadAll(r.Body); len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			reply(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
	}
	type sortKey struct {
		field, order, unmapped string
	}
	var keys []sortKey
	if q := r.URL.Query().Get("sort"); q != "" {
		field, order, _ := strings.Cut(q, ":")
		keys = append(keys, sortKey{field: field, order: order})
	}
	for _, clause := range body.Sort {
		for field, opt := range clause {
			keys = append(keys, sortKey{field: field, order: opt.Order, unmapped: opt.UnmappedType})
		}
	}

	order := slices.Clone(idx.order)
	for _, k := range keys {
		if _, ok := idx.mappings[k.field]; !ok && k.unmapped == "" {
			reply(w, http.StatusBadRequest, map[string]any{"error": map[string]any{
				"type":   "search_phase_execution_exception",
				"reason": "No mapping found for [" + k.field + "] in order to sort on",
			}})
			return
		}
		desc := k.order == "desc"
		slices.SortStableFunc(order, func(a, b string) int {
			c := compareField(idx.docs[a][k.field], idx.docs[b][k.field])
			if desc {
				return -c
			}
			return c
		})
	}

	from, _ := strconv.Atoi(r.URL.Query().Get("from"))
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil {
		size = 10
	}
	hits := []map[string]any{}
	for i := from; i < len(order) && i < from+size; i++ {
		id := order[i]
		hits = append(hits, map[string]any{"_id": id, "_source": idx.docs[id]})
	}
	reply(w, http.StatusOK, map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": len(idx.order), "relation": "eq"},
			"hits":  hits,
		},
	})
}

// compareField orders numeric values; missing values sort last.
func compareField(a, b any) int {
	na, aok := a.(json.Number)
	nb, bok := b.(json.Number)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	}
	x, _ := na.Int64()
	y, _ := nb.Int64()
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func toStrings(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		s, _ := x.(string)
		out = append(out, s)
	}
	if typed, ok := v.([]string); ok {
		return typed
	}
	return out
}

func reply(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
