package queueaccess

import (
	"context"
	"errors"
	"fmt"

	"castreel/internal/api"
	"castreel/internal/queue"
)

// Session represents a queue access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback uses the daemon API when it answers, then falls back to
// direct store access. Errors other than an unreachable daemon are returned
// as is so a bad token is not masked by the fallback.
func OpenWithFallback(
	ctx context.Context,
	client *api.Client,
	openStore func() (*queue.Store, error),
) (Session, error) {
	if client != nil {
		_, err := client.Metrics(ctx)
		if err == nil {
			return Session{Access: NewAPIAccess(client)}, nil
		}
		if !errors.Is(err, api.ErrDaemonUnavailable) {
			return Session{}, err
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(store),
		close:  store.Close,
	}, nil
}
