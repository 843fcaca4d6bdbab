package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"castreel/internal/config"
	"castreel/internal/services"
	"castreel/internal/services/feed"
)

func testFeedConfig(url string) config.Feed {
	cfg := config.Default().Feed
	cfg.BaseURL = url
	cfg.ChannelID = "page"
	cfg.RequestsPerMin = 6000
	return cfg
}

func TestFetchNewCastsParsesPage(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"followerFeed": q.Get("followerFeed"),
			"channelId":    q.Get("channelId"),
			"cursor":       q.Get("cursor"),
		}
		_, _ = w.Write([]byte(`{
			"casts": [
				{"id": "0xabc", "author": {"username": "alice", "displayName": "Alice"}, "text": "hi @bob and @carol.",
				 "timestamp": 1700000000000, "engagement": {"likes": 3, "total": 3},
				 "embeds": [{"url": "https://img.example/a.png"}]},
				{"id": 42, "author": {"username": "bob"}, "text": "numeric id", "timestamp": 1},
				{"author": {"username": "ghost"}, "text": "no id"}
			],
			"next": {"cursor": "c2"}
		}`))
	}))
	defer server.Close()

	client := feed.NewClient(testFeedConfig(server.URL), nil)
	page, err := client.FetchNewCasts(context.Background(), "c1")
	if err != nil {
		t.Fatalf("FetchNewCasts failed: %v", err)
	}
	if gotQuery["followerFeed"] != "true" || gotQuery["channelId"] != "page" || gotQuery["cursor"] != "c1" {
		t.Fatalf("unexpected query: %v", gotQuery)
	}
	if page.NextCursor != "c2" {
		t.Fatalf("unexpected next cursor %q", page.NextCursor)
	}
	if len(page.Casts) != 2 {
		t.Fatalf("expected 2 casts with ids, got %d", len(page.Casts))
	}
	first := page.Casts[0]
	if first.SourceRef() != "cast:0xabc" {
		t.Fatalf("unexpected source ref %q", first.SourceRef())
	}
	if mentions := first.Mentions(); len(mentions) != 2 || mentions[0] != "bob" || mentions[1] != "carol" {
		t.Fatalf("unexpected mentions %v", mentions)
	}
	if urls := first.MediaURLs(); len(urls) != 1 || urls[0] != "https://img.example/a.png" {
		t.Fatalf("unexpected media urls %v", urls)
	}
	if first.PostedAt().Year() != 2023 {
		t.Fatalf("unexpected posted at %v", first.PostedAt())
	}
	if len(first.Raw) == 0 {
		t.Fatal("expected raw payload to be retained")
	}
	if page.Casts[1].SourceRef() != "cast:42" {
		t.Fatalf("numeric ids should be accepted, got %q", page.Casts[1].SourceRef())
	}
}

func TestFetchNewCastsClassifiesFailures(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadGateway)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := int(status.Load())
		if code == http.StatusOK {
			_, _ = w.Write([]byte(`{"casts": "nope"}`))
			return
		}
		w.WriteHeader(code)
	}))
	defer server.Close()

	client := feed.NewClient(testFeedConfig(server.URL), nil)
	_, err := client.FetchNewCasts(context.Background(), "")
	if services.Classify(err) != services.KindTransient {
		t.Fatalf("502 should be transient, got %v", err)
	}

	status.Store(http.StatusOK)
	_, err = client.FetchNewCasts(context.Background(), "")
	if services.Classify(err) != services.KindPermanent {
		t.Fatalf("malformed payload should be permanent, got %v", err)
	}
}

func TestFetchNewCastsSkipsUndecodableCasts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"casts": [
				{"id": "good", "author": {"username": "alice"}, "text": "fine"},
				{"id": {"nested": true}, "author": {"username": "bob"}, "text": "bad id"},
				{"id": "also-good", "author": {"username": "carol"}, "text": "fine too"}
			],
			"next": {"cursor": "c9"}
		}`))
	}))
	defer server.Close()

	client := feed.NewClient(testFeedConfig(server.URL), nil)
	page, err := client.FetchNewCasts(context.Background(), "")
	if err != nil {
		t.Fatalf("one bad cast must not fail the page: %v", err)
	}
	if page.NextCursor != "c9" {
		t.Fatalf("expected next cursor c9, got %q", page.NextCursor)
	}
	if len(page.Casts) != 2 || page.Casts[0].ID != "good" || page.Casts[1].ID != "also-good" {
		t.Fatalf("unexpected casts %+v", page.Casts)
	}
	if len(page.Skipped) != 1 || page.Skipped[0].Index != 1 {
		t.Fatalf("expected entry 1 skipped, got %+v", page.Skipped)
	}
}
