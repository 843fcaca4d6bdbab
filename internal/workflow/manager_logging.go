package workflow

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"castreel/internal/queue"
	"castreel/internal/services"
)

func withStageContext(ctx context.Context, stageName queue.Stage, job *queue.Job, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if job != nil {
		ctx = services.WithJobID(ctx, job.ID)
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, string(stageName))
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

var titleCaser = cases.Title(language.English)

// deriveStageLabel turns a stage or state name into a display label, e.g.
// "transcribe" -> "Transcribe".
func deriveStageLabel(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	if name == "" {
		return ""
	}
	return titleCaser.String(name)
}
