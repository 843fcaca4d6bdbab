package stage

import (
	"encoding/json"
	"strings"

	"castreel/internal/queue"
	"castreel/internal/services"
	"castreel/internal/services/feed"
	"castreel/internal/textutil"
)

// DecodeCast parses the cast stored as the job payload. A missing or
// malformed payload is permanent: retrying cannot repair it.
func DecodeCast(job *queue.Job) (feed.Cast, error) {
	if job == nil || len(job.Payload) == 0 {
		return feed.Cast{}, services.Wrap(services.ErrPermanent, "stage", "decode cast",
			"job has no cast payload", nil)
	}
	var cast feed.Cast
	if err := json.Unmarshal(job.Payload, &cast); err != nil {
		return feed.Cast{}, services.Wrap(services.ErrPermanent, "stage", "decode cast",
			"cast payload is not valid JSON", err)
	}
	cast.Raw = job.Payload
	return cast, nil
}

// RequireArtifact returns the URI an earlier stage recorded under name.
func RequireArtifact(job *queue.Job, name string) (string, error) {
	uri, ok := job.Artifact(name)
	if !ok || strings.TrimSpace(uri) == "" {
		return "", services.Wrap(services.ErrPermanent, "stage", "load artifact",
			"missing "+name+" artifact from earlier stage", nil)
	}
	return uri, nil
}

const captionLimit = 280

// Caption builds the short caption used for generated and published videos.
func Caption(cast feed.Cast) string {
	text := textutil.TruncateRunes(textutil.CollapseSpace(cast.Text), captionLimit)
	if author := strings.TrimSpace(cast.Author.Username); author != "" {
		if text == "" {
			return "@" + author
		}
		return text + " (@" + author + ")"
	}
	return text
}
