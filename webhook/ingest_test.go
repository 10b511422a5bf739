package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrakt.dev/security"
	"infrakt.dev/store"
)

func pushBody() []byte {
	return []byte(`{"ref":"refs/heads/main","repository":{"clone_url":"https://github.com/org/repo.git"}}`)
}

func TestDecidePushHappyPath(t *testing.T) {
	body := pushBody()
	apps := []store.App{{
		Name:          "api",
		GitRepo:       "https://github.com/org/repo.git",
		Branch:        "main",
		WebhookSecret: "mysecret",
		AutoDeploy:    true,
	}}

	outcome := DecidePush(body, security.SignBody(body, "mysecret"), apps)
	require.NotNil(t, outcome.App)
	assert.Equal(t, "api", outcome.App.Name)
	assert.Equal(t, "main", outcome.Branch)
	assert.Contains(t, outcome.Reason, "triggered")
}

func TestDecidePushWrongSecret(t *testing.T) {
	body := pushBody()
	apps := []store.App{{
		Name:          "api",
		GitRepo:       "https://github.com/org/repo.git",
		Branch:        "main",
		WebhookSecret: "mysecret",
		AutoDeploy:    true,
	}}

	outcome := DecidePush(body, security.SignBody(body, "wrong"), apps)
	assert.Nil(t, outcome.App)
	assert.Contains(t, outcome.Reason, "no matching")
}

func TestDecidePushSkipsAppsWithoutSecretOrAutoDeploy(t *testing.T) {
	body := pushBody()
	apps := []store.App{
		{Name: "nosecret", GitRepo: "https://github.com/org/repo.git", Branch: "main", AutoDeploy: true},
		{Name: "manual", GitRepo: "https://github.com/org/repo.git", Branch: "main", WebhookSecret: "mysecret", AutoDeploy: false},
		{Name: "auto", GitRepo: "https://github.com/org/repo.git", Branch: "main", WebhookSecret: "mysecret", AutoDeploy: true},
	}

	outcome := DecidePush(body, security.SignBody(body, "mysecret"), apps)
	require.NotNil(t, outcome.App)
	assert.Equal(t, "auto", outcome.App.Name)
}

func TestDecidePushNonBranchRef(t *testing.T) {
	body := []byte(`{"ref":"refs/tags/v1.0","repository":{"clone_url":"https://github.com/org/repo.git"}}`)
	outcome := DecidePush(body, "", nil)
	assert.Nil(t, outcome.App)
	assert.Contains(t, outcome.Reason, "not a branch")
}

func TestDecidePushNoMatch(t *testing.T) {
	outcome := DecidePush(pushBody(), "", []store.App{
		{Name: "other", GitRepo: "https://github.com/org/other.git", Branch: "main"},
	})
	assert.Nil(t, outcome.App)
	assert.Contains(t, outcome.Reason, "no matching app for this repository")
}

func TestSameRepoNormalization(t *testing.T) {
	assert.True(t, sameRepo("https://GitHub.com/org/repo.git", "https://github.com/org/repo"))
	assert.True(t, sameRepo("https://github.com/org/repo/", "https://github.com/org/repo.git"))
	assert.False(t, sameRepo("https://github.com/org/repo.git", "https://github.com/org/other.git"))
}
