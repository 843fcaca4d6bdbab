// Package feed fetches casts from the Warpcast follower-feed proxy.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"castreel/internal/config"
	"castreel/internal/services"
)

const serviceName = "feed"

// Author identifies who posted a cast.
type Author struct {
	Username     string `json:"username"`
	DisplayName  string `json:"displayName"`
	ProfileImage string `json:"profileImage"`
}

// Engagement carries reaction counters reported by the feed.
type Engagement struct {
	Likes   int `json:"likes"`
	Recasts int `json:"recasts"`
	Replies int `json:"replies"`
	Total   int `json:"total"`
}

// Cast is one post as delivered by the feed. Raw holds the original JSON so it
// can be stored on the job unchanged.
type Cast struct {
	ID         CastID          `json:"id"`
	Author     Author          `json:"author"`
	Text       string          `json:"text"`
	Timestamp  int64           `json:"timestamp"`
	Engagement Engagement      `json:"engagement"`
	Embeds     json.RawMessage `json:"embeds,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// SourceRef is the dedup key used for jobs created from this cast.
func (c Cast) SourceRef() string {
	return "cast:" + string(c.ID)
}

// PostedAt converts the millisecond timestamp.
func (c Cast) PostedAt() time.Time {
	if c.Timestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.Timestamp).UTC()
}

var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9_.]+)`)

// Mentions lists usernames mentioned in the cast text, in order of appearance.
func (c Cast) Mentions() []string {
	matches := mentionPattern.FindAllStringSubmatch(c.Text, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		name := strings.TrimRight(m[1], ".")
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// MediaURLs extracts URLs from the embeds field, which the feed emits either as
// a list of {"url": ...} objects or as a single object.
func (c Cast) MediaURLs() []string {
	if len(c.Embeds) == 0 {
		return nil
	}
	type embed struct {
		URL string `json:"url"`
	}
	var list []embed
	if err := json.Unmarshal(c.Embeds, &list); err != nil {
		var single embed
		if err := json.Unmarshal(c.Embeds, &single); err != nil || single.URL == "" {
			return nil
		}
		return []string{single.URL}
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if e.URL != "" {
			out = append(out, e.URL)
		}
	}
	return out
}

// CastID accepts both string and numeric ids from the feed.
type CastID string

func (id *CastID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = CastID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = CastID(n.String())
	return nil
}

// Page is one response from the feed.
type Page struct {
	Casts      []Cast
	NextCursor string

	// Skipped lists casts dropped because they had no id or did not decode.
	Skipped []SkippedCast
}

// SkippedCast records why one entry of a page was not returned.
type SkippedCast struct {
	Index  int
	Reason string
}

// Source is the feed contract the ingest stage depends on.
type Source interface {
	FetchNewCasts(ctx context.Context, cursor string) (Page, error)
}

// Client fetches feed pages over HTTP.
type Client struct {
	baseURL        string
	channelID      string
	followerLimit  int
	castLimit      int
	totalCastLimit int
	timeout        time.Duration
	limiter        *rate.Limiter
	http           services.HTTPDoer
}

// NewClient builds a Client from the [feed] config section.
func NewClient(cfg config.Feed, client services.HTTPDoer) *Client {
	if client == nil {
		client = &http.Client{}
	}
	perMinute := cfg.RequestsPerMin
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Client{
		baseURL:        strings.TrimSpace(cfg.BaseURL),
		channelID:      cfg.ChannelID,
		followerLimit:  cfg.FollowerLimit,
		castLimit:      cfg.CastLimit,
		totalCastLimit: cfg.TotalCastLimit,
		timeout:        time.Duration(cfg.RequestTimeout) * time.Second,
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		http:           client,
	}
}

type wireResponse struct {
	Casts []json.RawMessage `json:"casts"`
	Next  struct {
		Cursor string `json:"cursor"`
	} `json:"next"`
}

// FetchNewCasts returns the page after cursor (the head when cursor is empty).
func (c *Client) FetchNewCasts(ctx context.Context, cursor string) (Page, error) {
	if c.baseURL == "" {
		return Page{}, services.Wrap(services.ErrConfiguration, serviceName, "fetch", "base url not configured", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, services.Wrap(services.ErrTransient, serviceName, "fetch", "rate limit wait", err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(cursor), nil)
	if err != nil {
		return Page{}, services.Wrap(services.ErrPermanent, serviceName, "fetch", "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, services.Wrap(services.ErrTransient, serviceName, "fetch", "request failed", err)
	}
	defer resp.Body.Close()

	var wire wireResponse
	if err := services.DecodeResponse(serviceName, "fetch", resp, &wire); err != nil {
		return Page{}, err
	}
	page := Page{NextCursor: wire.Next.Cursor, Casts: make([]Cast, 0, len(wire.Casts))}
	for idx, raw := range wire.Casts {
		var cast Cast
		if err := json.Unmarshal(raw, &cast); err != nil {
			page.Skipped = append(page.Skipped, SkippedCast{Index: idx, Reason: "malformed cast: " + err.Error()})
			continue
		}
		if cast.ID == "" {
			page.Skipped = append(page.Skipped, SkippedCast{Index: idx, Reason: "missing id"})
			continue
		}
		cast.Raw = append(json.RawMessage(nil), raw...)
		page.Casts = append(page.Casts, cast)
	}
	return page, nil
}

func (c *Client) pageURL(cursor string) string {
	params := url.Values{}
	params.Set("followerFeed", "true")
	params.Set("channelId", c.channelID)
	params.Set("followerLimit", strconv.Itoa(c.followerLimit))
	params.Set("castLimit", strconv.Itoa(c.castLimit))
	params.Set("totalCastLimit", strconv.Itoa(c.totalCastLimit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return c.baseURL + sep + params.Encode()
}
