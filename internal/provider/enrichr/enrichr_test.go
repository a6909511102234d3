package enrichr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnrichr struct {
	addListCalls atomic.Int32
	enrichCalls  atomic.Int32
	failFirstN   int32
	lastList     atomic.Value
	lastService  atomic.Value
	libraries    map[string][][]any
}

func (f *fakeEnrichr) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.lastService.Store(parts[0])
		switch parts[1] {
		case "addList":
			n := f.addListCalls.Add(1)
			if n <= f.failFirstN {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			f.lastList.Store(r.FormValue("list"))
			_ = json.NewEncoder(w).Encode(map[string]any{"userListId": 42, "shortId": "abc"})
		case "enrich":
			f.enrichCalls.Add(1)
			assert.Equal(t, "42", r.URL.Query().Get("userListId"))
			lib := r.URL.Query().Get("backgroundType")
			out := map[string]any{}
			if rows, ok := f.libraries[lib]; ok {
				out[lib] = rows
			}
			_ = json.NewEncoder(w).Encode(out)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestClient(url string, retries int) *Client {
	c := NewClient(Config{BaseURL: url, MaxRetries: retries, Timeout: 5 * time.Second})
	c.baseDelay = time.Millisecond
	return c
}

func TestQueryParsesRows(t *testing.T) {
	fake := &fakeEnrichr{libraries: map[string][][]any{
		"KEGG_2021_Human": {
			{1, "Cell cycle", 0.0001, 5.2, 40.1, []string{"CDK1", "CCNB1"}, 0.002, 0, 0},
			{2, "p53 signaling", 0.01, 3.0, 12.0, []string{"TP53"}, 0.2, 0, 0},
		},
		"WikiPathways_2019_Human": {
			{1, "Apoptosis", 0.003, 2.2, 8.0, []string{"TP53"}, 0.03, 0, 0},
		},
	}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	table, err := c.Query(context.Background(), []string{"CDK1", "CCNB1", "TP53"},
		[]string{"KEGG_2021_Human", "WikiPathways_2019_Human"}, "human")
	require.NoError(t, err)

	require.Equal(t, 3, table.Len())
	first := table.Rows[0]
	assert.Equal(t, "KEGG_2021_Human", first.GeneSet)
	assert.Equal(t, "Cell cycle", first.Term)
	assert.InDelta(t, 0.0001, first.PValue, 1e-12)
	assert.InDelta(t, 0.002, first.AdjustedPValue, 1e-12)
	assert.InDelta(t, 5.2, first.OddsRatio, 1e-12)
	assert.Equal(t, []string{"CDK1", "CCNB1"}, first.Genes)
	assert.Equal(t, "2/3", first.Overlap)
	assert.Equal(t, "WikiPathways_2019_Human", table.Rows[2].GeneSet)

	assert.Equal(t, int32(1), fake.addListCalls.Load())
	assert.Equal(t, int32(2), fake.enrichCalls.Load())
	assert.Equal(t, "CDK1\nCCNB1\nTP53", fake.lastList.Load())
	assert.Equal(t, "Enrichr", fake.lastService.Load())
}

func TestQueryRetriesServerErrors(t *testing.T) {
	fake := &fakeEnrichr{failFirstN: 2, libraries: map[string][][]any{"KEGG_2019": {}}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	table, err := newTestClient(srv.URL, 3).Query(context.Background(), []string{"A"}, []string{"KEGG_2019"}, "zebrafish")
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, int32(3), fake.addListCalls.Load())
	assert.Equal(t, "FishEnrichr", fake.lastService.Load())
}

func TestQueryCapsRetryAfter(t *testing.T) {
	var addList atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/addList") && addList.Add(1) == 1 {
			w.Header().Set("Retry-After", "3600")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/addList") {
			_ = json.NewEncoder(w).Encode(map[string]any{"userListId": 7})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	c.maxDelay = 20 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.Query(ctx, []string{"A"}, []string{"KEGG_2019"}, "human")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(2), addList.Load())
}

func TestRetryAfter(t *testing.T) {
	c := NewClient(Config{})
	assert.Equal(t, 2*time.Second, c.retryAfter("2", 0))
	assert.Equal(t, 5*time.Second, c.retryAfter("3600", 0))
	assert.Equal(t, c.retryDelay(1), c.retryAfter("Wed, 21 Oct 2026 07:28:00 GMT", 1))
	assert.Equal(t, c.retryDelay(0), c.retryAfter("-4", 0))
}

func TestQueryGivesUpAfterRetries(t *testing.T) {
	fake := &fakeEnrichr{failFirstN: 10}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 1).Query(context.Background(), []string{"A"}, []string{"KEGG_2019"}, "human")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(2), fake.addListCalls.Load())
}

func TestQueryUnknownLibrary(t *testing.T) {
	fake := &fakeEnrichr{libraries: map[string][][]any{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 0).Query(context.Background(), []string{"A"}, []string{"Nope_2020"}, "human")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nope_2020")
}

func TestQueryRejectsEmptyInput(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	_, err := c.Query(context.Background(), nil, []string{"KEGG_2019"}, "human")
	assert.Error(t, err)
	_, err = c.Query(context.Background(), []string{"A"}, nil, "human")
	assert.Error(t, err)
}

func TestQueryHonoursCancellation(t *testing.T) {
	fake := &fakeEnrichr{failFirstN: 100}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := newTestClient(srv.URL, 50)
	c.baseDelay = time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Query(ctx, []string{"A"}, []string{"KEGG_2019"}, "human")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServiceFor(t *testing.T) {
	assert.Equal(t, "Enrichr", ServiceFor("human"))
	assert.Equal(t, "Enrichr", ServiceFor("mouse"))
	assert.Equal(t, "FishEnrichr", ServiceFor("Zebrafish"))
	assert.Equal(t, "FlyEnrichr", ServiceFor("fly"))
	assert.Equal(t, "YeastEnrichr", ServiceFor("yeast"))
	assert.Equal(t, "WormEnrichr", ServiceFor("worm"))
	assert.Equal(t, "Enrichr", ServiceFor("unknown"))
}
