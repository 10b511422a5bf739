package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrakt.dev/security"
	"infrakt.dev/store"
)

type capturedDelivery struct {
	payload   Payload
	event     string
	delivery  string
	signature string
	body      []byte
}

// captureTarget collects every request a test server receives.
func captureTarget(t *testing.T) (*httptest.Server, func() []capturedDelivery) {
	t.Helper()
	var mu sync.Mutex
	var got []capturedDelivery
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var p Payload
		require.NoError(t, json.Unmarshal(body, &p))
		mu.Lock()
		got = append(got, capturedDelivery{
			payload:   p,
			event:     r.Header.Get("X-Infrakt-Event"),
			delivery:  r.Header.Get(DeliveryHeader),
			signature: r.Header.Get(security.SignatureHeader),
			body:      body,
		})
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedDelivery {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedDelivery(nil), got...)
	}
}

func dispatcherStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "infrakt.db"))
	require.NoError(t, err)
	return s
}

func TestDispatchDeliversToSubscribers(t *testing.T) {
	s := dispatcherStore(t)
	target, deliveries := captureTarget(t)

	require.NoError(t, s.CreateWebhook(&store.Webhook{URL: target.URL}))

	d := NewDispatcher(s)
	d.Dispatch(EventDeploymentSucceeded, map[string]any{"app": "api", "server": "prod"})

	got := deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, EventDeploymentSucceeded, got[0].payload.Event)
	assert.Equal(t, EventDeploymentSucceeded, got[0].event)
	assert.Equal(t, "api", got[0].payload.Data["app"])
	assert.NotEmpty(t, got[0].delivery)
	assert.Empty(t, got[0].signature, "unsigned hooks carry no signature header")
}

func TestDispatchHonorsEventFilter(t *testing.T) {
	s := dispatcherStore(t)
	target, deliveries := captureTarget(t)

	require.NoError(t, s.CreateWebhook(&store.Webhook{
		URL:    target.URL,
		Events: EventDeploymentFailed,
	}))

	d := NewDispatcher(s)
	d.Dispatch(EventDeploymentSucceeded, nil)
	d.Dispatch(EventDeploymentFailed, nil)

	got := deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, EventDeploymentFailed, got[0].payload.Event)
}

func TestDispatchSignsWhenSecretSet(t *testing.T) {
	s := dispatcherStore(t)
	target, deliveries := captureTarget(t)

	require.NoError(t, s.CreateWebhook(&store.Webhook{URL: target.URL, Secret: "hook-secret"}))

	NewDispatcher(s).Dispatch(EventServerProvisioned, map[string]any{"server": "prod"})

	got := deliveries()
	require.Len(t, got, 1)
	assert.True(t, security.VerifySignature(got[0].body, "hook-secret", got[0].signature),
		"signature must verify against the exact delivered body")
}

func TestDispatchSurvivesDeadTargets(t *testing.T) {
	s := dispatcherStore(t)
	live, deliveries := captureTarget(t)

	require.NoError(t, s.CreateWebhook(&store.Webhook{URL: "http://127.0.0.1:1/unreachable"}))
	require.NoError(t, s.CreateWebhook(&store.Webhook{URL: live.URL}))

	// Must not panic or error; the live target still gets its delivery.
	NewDispatcher(s).Dispatch(EventAppDestroyed, map[string]any{"app": "api"})

	require.Len(t, deliveries(), 1)
}
