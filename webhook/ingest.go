package webhook

import (
	"encoding/json"
	"strings"

	"infrakt.dev/security"
	"infrakt.dev/store"
)

// PushEvent is the slice of a provider push payload the control plane
// reads.
type PushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		CloneURL string `json:"clone_url"`
		HTMLURL  string `json:"html_url"`
	} `json:"repository"`
}

// IngestOutcome describes what the push endpoint decided.
type IngestOutcome struct {
	// App is the app to deploy, nil when nothing matched.
	App *store.App
	// Branch extracted from the ref.
	Branch string
	// Reason is the textual response body line.
	Reason string
}

// DecidePush applies the push-ingest rules to a raw body: extract the
// branch ref and clone URL, find apps bound to that (repo, branch),
// verify the per-app signature, and pick the first auto-deploy match.
// The outcome is always a 200-class answer; a miss carries its reason.
func DecidePush(body []byte, signature string, candidates []store.App) IngestOutcome {
	var event PushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return IngestOutcome{Reason: "ignored: payload is not a push event"}
	}
	if !strings.HasPrefix(event.Ref, "refs/heads/") {
		return IngestOutcome{Reason: "ignored: ref is not a branch"}
	}
	branch := strings.TrimPrefix(event.Ref, "refs/heads/")
	if event.Repository.CloneURL == "" {
		return IngestOutcome{Reason: "ignored: payload has no repository clone URL"}
	}

	matched := false
	for i := range candidates {
		app := &candidates[i]
		if !sameRepo(app.GitRepo, event.Repository.CloneURL) || app.Branch != branch {
			continue
		}
		matched = true
		if app.WebhookSecret == "" {
			continue
		}
		if !security.VerifySignature(body, app.WebhookSecret, signature) {
			continue
		}
		if !app.AutoDeploy {
			continue
		}
		return IngestOutcome{
			App:    app,
			Branch: branch,
			Reason: "deployment triggered for " + app.Name,
		}
	}
	if matched {
		return IngestOutcome{Branch: branch, Reason: "no matching app with a verified signature and auto-deploy enabled"}
	}
	return IngestOutcome{Branch: branch, Reason: "no matching app for this repository and branch"}
}

// sameRepo compares clone URLs ignoring a trailing ".git" and case in
// the host part.
func sameRepo(a, b string) bool {
	return normalizeRepo(a) == normalizeRepo(b)
}

func normalizeRepo(u string) string {
	u = strings.TrimSuffix(strings.TrimSpace(u), ".git")
	u = strings.TrimSuffix(u, "/")
	return strings.ToLower(u)
}
