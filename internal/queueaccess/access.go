package queueaccess

import (
	"context"

	"castreel/internal/api"
	"castreel/internal/queue"
)

// Access provides job queries and operator actions whether the daemon is
// reachable over its HTTP API or the queue database is opened directly.
type Access interface {
	Metrics(ctx context.Context) (api.Metrics, error)
	List(ctx context.Context, states ...queue.State) ([]api.Job, error)
	Get(ctx context.Context, id string) (*api.Job, error)
	Retry(ctx context.Context, id string) (*api.Job, error)
	// Remote reports whether calls go through the daemon.
	Remote() bool
}

// NewAPIAccess returns an Access backed by the daemon HTTP API.
func NewAPIAccess(client *api.Client) Access {
	return &apiAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{store: store}
}

type apiAccess struct {
	client *api.Client
}

func (a *apiAccess) Metrics(ctx context.Context) (api.Metrics, error) {
	m, err := a.client.Metrics(ctx)
	if err != nil {
		return api.Metrics{}, err
	}
	return *m, nil
}

func (a *apiAccess) List(ctx context.Context, states ...queue.State) ([]api.Job, error) {
	return a.client.ListJobs(ctx, states...)
}

func (a *apiAccess) Get(ctx context.Context, id string) (*api.Job, error) {
	return a.client.GetJob(ctx, id)
}

func (a *apiAccess) Retry(ctx context.Context, id string) (*api.Job, error) {
	return a.client.RetryJob(ctx, id)
}

func (a *apiAccess) Remote() bool { return true }

type storeAccess struct {
	store *queue.Store
}

func (a *storeAccess) Metrics(ctx context.Context) (api.Metrics, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return api.Metrics{}, err
	}
	return api.FromStats(stats), nil
}

func (a *storeAccess) List(ctx context.Context, states ...queue.State) ([]api.Job, error) {
	jobs, err := a.store.List(ctx, states...)
	if err != nil {
		return nil, err
	}
	return api.FromJobs(jobs), nil
}

func (a *storeAccess) Get(ctx context.Context, id string) (*api.Job, error) {
	job, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := api.FromJob(job)
	return &out, nil
}

func (a *storeAccess) Retry(ctx context.Context, id string) (*api.Job, error) {
	job, err := a.store.Retry(ctx, id)
	if err != nil {
		return nil, err
	}
	out := api.FromJob(job)
	return &out, nil
}

func (a *storeAccess) Remote() bool { return false }
