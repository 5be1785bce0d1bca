package newsapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const newsPayload = `{"results":{"news":[
	{"title":"Morocco wins the cup","description":"Celebrations in Rabat","url":"https://a.example/1","source_name":"Hespress","page_age":"2026-10-14T06:00:00"},
	{"title":"Weather in Spain","description":"Rain","url":"https://a.example/2","source_name":"EFE"},
	{"title":"  ","description":"blank title","url":"https://a.example/3"},
	{"title":"المغرب يوقع اتفاقية","description":"","url":"","source_name":""},
	{"title":"MOROCCO trade deal","description":"x","url":"https://a.example/5","source_name":"Reuters"}
]}}`

func newTestServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(endpoint string, mut func(*Options)) *Client {
	opt := Options{
		APIKey:   "secret",
		Endpoint: endpoint,
		Keywords: []string{"مغرب", "Morocco"},
		Timeout:  2 * time.Second,
	}
	if mut != nil {
		mut(&opt)
	}
	return New(opt)
}

func TestFetchNewsShapeFiltersInOrder(t *testing.T) {
	var gotKey, gotQuery, gotCount, gotFresh string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotQuery = r.URL.Query().Get("query")
		gotCount = r.URL.Query().Get("count")
		gotFresh = r.URL.Query().Get("freshness")
		_, _ = w.Write([]byte(newsPayload))
	})

	res := newTestClient(srv.URL, nil).Fetch(context.Background(), "أخبار المغرب عاجل", 20)
	if res.Outcome != OutcomeOK || res.Err != nil {
		t.Fatalf("outcome = %s err = %v", res.Outcome, res.Err)
	}
	if gotKey != "secret" || gotQuery != "أخبار المغرب عاجل" || gotCount != "20" || gotFresh != "day" {
		t.Fatalf("request: key=%q query=%q count=%q freshness=%q", gotKey, gotQuery, gotCount, gotFresh)
	}
	if res.Strategy != "news" || res.Raw != 5 {
		t.Fatalf("strategy = %q raw = %d", res.Strategy, res.Raw)
	}

	titles := make([]string, 0, len(res.Items))
	for _, it := range res.Items {
		titles = append(titles, it.Title)
	}
	if got, want := strings.Join(titles, "|"), "Morocco wins the cup|المغرب يوقع اتفاقية|MOROCCO trade deal"; got != want {
		t.Fatalf("titles = %q, want %q", got, want)
	}

	arabic := res.Items[1]
	if arabic.URL != DefaultFallbackURL || arabic.Source != DefaultSource {
		t.Fatalf("defaults not applied: %+v", arabic)
	}
}

func TestFetchCapsItems(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(newsPayload))
	})
	res := newTestClient(srv.URL, func(o *Options) { o.MaxItems = 2 }).Fetch(context.Background(), "q", 20)
	if len(res.Items) != 2 || res.Items[1].Title != "المغرب يوقع اتفاقية" {
		t.Fatalf("items = %+v", res.Items)
	}
}

func TestFetchFallsBackToWebShape(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"news":[],"web":[
			{"title":"Casablanca port expands, Morocco says","snippets":["First snippet","second"],"url":"https://www.le360.ma/x"},
			{"title":"Nothing relevant","snippets":["n/a"],"url":"https://b.example"}
		]}}`))
	})
	res := newTestClient(srv.URL, nil).Fetch(context.Background(), "q", 20)
	if res.Outcome != OutcomeOK || res.Strategy != "web" {
		t.Fatalf("outcome = %s strategy = %q", res.Outcome, res.Strategy)
	}
	if len(res.Items) != 1 {
		t.Fatalf("items = %+v", res.Items)
	}
	it := res.Items[0]
	if it.Summary != "First snippet" || it.Source != "le360.ma" {
		t.Fatalf("web fallbacks not applied: %+v", it)
	}
}

func TestFetchDegrades(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":`))
		},
		"timeout": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, h)
			c := newTestClient(srv.URL, func(o *Options) { o.Timeout = 100 * time.Millisecond })
			res := c.Fetch(context.Background(), "q", 20)
			if res.Outcome != OutcomeFailed || res.Err == nil {
				t.Fatalf("outcome = %s err = %v", res.Outcome, res.Err)
			}
			if len(res.Items) != 0 {
				t.Fatalf("items on failure: %+v", res.Items)
			}
		})
	}
}

func TestFetchStatusError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	res := newTestClient(srv.URL, nil).Fetch(context.Background(), "q", 20)
	if !IsStatus(res.Err, http.StatusUnauthorized) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestFetchEmptyIsNotFailure(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"news":[{"title":"Unrelated","url":"u"}]}}`))
	})
	res := newTestClient(srv.URL, nil).Fetch(context.Background(), "q", 20)
	if res.Outcome != OutcomeEmpty || res.Err != nil || res.Raw != 1 {
		t.Fatalf("result = %+v", res)
	}

	srv2 := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	res = newTestClient(srv2.URL, nil).Fetch(context.Background(), "q", 20)
	if res.Outcome != OutcomeEmpty || res.Strategy != "" {
		t.Fatalf("no known shape: %+v", res)
	}
}

func TestFetchRateBudget(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	})
	c := newTestClient(srv.URL, func(o *Options) { o.RatePerMin = 1 })

	if res := c.Fetch(context.Background(), "q", 20); res.Outcome == OutcomeFailed {
		t.Fatalf("first call failed: %v", res.Err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if res := c.Fetch(ctx, "q", 20); res.Outcome != OutcomeFailed || !errors.Is(res.Err, ErrBudget) {
		t.Fatalf("second call should exceed the budget, got %s", res.Outcome)
	}
	if calls.Load() != 1 {
		t.Fatalf("upstream calls = %d", calls.Load())
	}
}
