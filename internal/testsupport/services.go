package testsupport

import (
	"context"
	"strings"
	"sync"
	"time"

	"castreel/internal/services/feed"
	"castreel/internal/services/generate"
	"castreel/internal/services/publish"
	"castreel/internal/services/transcribe"
)

// Call describes one scripted adapter invocation.
type Call struct {
	JobID     string
	SourceRef string
	// Attempt counts calls for this job on this adapter, starting at 1.
	Attempt int
}

// Responder scripts the outcome of a fake adapter call.
type Responder func(Call) (string, error)

// Recorder is the shared core of the fake adapters. It counts calls per job
// and tracks peak concurrency.
type Recorder struct {
	// Delay holds each call open before responding.
	Delay   time.Duration
	Respond Responder

	mu          sync.Mutex
	calls       map[string]int
	inFlight    int
	maxInFlight int
	total       int
}

// NewRecorder builds a Recorder that answers with respond.
func NewRecorder(respond Responder) *Recorder {
	return &Recorder{Respond: respond, calls: make(map[string]int)}
}

// PrefixResponder returns prefix + the numeric part of the cast reference,
// e.g. "t:" for cast:42 yields "t:42".
func PrefixResponder(prefix string) Responder {
	return func(c Call) (string, error) {
		return prefix + strings.TrimPrefix(c.SourceRef, "cast:"), nil
	}
}

func (r *Recorder) invoke(ctx context.Context, jobID, sourceRef string) (string, error) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[jobID]++
	r.total++
	call := Call{JobID: jobID, SourceRef: sourceRef, Attempt: r.calls[jobID]}
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r.Respond == nil {
		return "", nil
	}
	return r.Respond(call)
}

// Calls returns how many times the adapter was called for jobID.
func (r *Recorder) Calls(jobID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[jobID]
}

// Total returns the number of calls across all jobs.
func (r *Recorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// MaxInFlight returns the peak number of concurrent calls observed.
func (r *Recorder) MaxInFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInFlight
}

// FakeTranscriber implements transcribe.Engine.
type FakeTranscriber struct{ *Recorder }

// Submit records the call and returns the scripted transcript URI.
func (f FakeTranscriber) Submit(ctx context.Context, req transcribe.Request) (transcribe.Handle, error) {
	uri, err := f.invoke(ctx, req.JobID, req.SourceRef)
	if err != nil {
		return transcribe.Handle{}, err
	}
	return transcribe.Handle{RunID: "run-" + req.JobID, URI: uri}, nil
}

// FakeGenerator implements generate.Backend.
type FakeGenerator struct{ *Recorder }

// Submit records the call and returns the scripted video URI.
func (f FakeGenerator) Submit(ctx context.Context, req generate.Request) (generate.Handle, error) {
	uri, err := f.invoke(ctx, req.JobID, req.SourceRef)
	if err != nil {
		return generate.Handle{}, err
	}
	return generate.Handle{RunID: "run-" + req.JobID, URI: uri}, nil
}

// FakePublisher implements publish.Publisher.
type FakePublisher struct{ *Recorder }

// Publish records the call and returns the scripted reference.
func (f FakePublisher) Publish(ctx context.Context, req publish.Request) (publish.Ref, error) {
	ref, err := f.invoke(ctx, req.JobID, req.SourceRef)
	if err != nil {
		return publish.Ref{}, err
	}
	return publish.Ref{Ref: ref}, nil
}

// FakeFeed serves scripted pages keyed by cursor. The head page uses "".
type FakeFeed struct {
	mu      sync.Mutex
	pages   map[string]feed.Page
	err     error
	cursors []string
}

// NewFakeFeed builds a feed that returns pages[cursor].
func NewFakeFeed(pages map[string]feed.Page) *FakeFeed {
	if pages == nil {
		pages = make(map[string]feed.Page)
	}
	return &FakeFeed{pages: pages}
}

// SetError makes subsequent fetches fail with err. A nil err clears it.
func (f *FakeFeed) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// SetPage replaces the page served for cursor.
func (f *FakeFeed) SetPage(cursor string, page feed.Page) {
	f.mu.Lock()
	f.pages[cursor] = page
	f.mu.Unlock()
}

// FetchNewCasts returns the scripted page for cursor.
func (f *FakeFeed) FetchNewCasts(_ context.Context, cursor string) (feed.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)
	if f.err != nil {
		return feed.Page{}, f.err
	}
	return f.pages[cursor], nil
}

// Cursors returns every cursor requested so far.
func (f *FakeFeed) Cursors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cursors...)
}

// Cast builds a feed cast with the given id, author, and text.
func Cast(id, author, text string) feed.Cast {
	raw := []byte(`{"id":"` + id + `","author":{"username":"` + author + `"},"text":"` + text + `"}`)
	return feed.Cast{
		ID:     feed.CastID(id),
		Author: feed.Author{Username: author},
		Text:   text,
		Raw:    raw,
	}
}
