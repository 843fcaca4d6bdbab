package preflight

import (
	"context"

	"castreel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the startup checks for the given config.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// CheckServices probes every configured HTTP endpoint. The s3 publisher is
// reported from configuration only.
func CheckServices(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckEndpoint(ctx, "Feed", cfg.Feed.BaseURL, ""),
		CheckEndpoint(ctx, "Transcription", cfg.Transcription.BaseURL, cfg.Transcription.APIKey),
		CheckEndpoint(ctx, "Generation", cfg.Generation.BaseURL, cfg.Generation.APIKey),
	}
	if cfg.Publisher.Kind == config.PublisherKindS3 {
		results = append(results, CheckBucketConfig(cfg.Publisher))
	} else {
		results = append(results, CheckEndpoint(ctx, "Publisher", cfg.Publisher.BaseURL, cfg.Publisher.APIKey))
	}
	return results
}
