// Package webhook handles both directions of webhook traffic: fanning
// out event notifications to subscribed targets, and ingesting push
// events from the source-control provider.
package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"infrakt.dev/common"
	"infrakt.dev/security"
	"infrakt.dev/store"
)

// Event names emitted by the control plane.
const (
	EventDeploymentStarted   = "deployment.started"
	EventDeploymentSucceeded = "deployment.succeeded"
	EventDeploymentFailed    = "deployment.failed"
	EventAppDestroyed        = "app.destroyed"
	EventServerProvisioned   = "server.provisioned"
)

// DeliveryHeader carries the unique delivery id on every outbound
// request.
const DeliveryHeader = "X-Infrakt-Delivery"

// Payload is the body of an outbound notification.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Dispatcher fans events out to webhook subscriptions. Delivery is
// best-effort: failures are logged at warning level and never
// propagate to the triggering operation.
type Dispatcher struct {
	store  *store.Store
	client *http.Client
}

// NewDispatcher returns a dispatcher backed by the given store.
func NewDispatcher(st *store.Store) *Dispatcher {
	return &Dispatcher{
		store:  st,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Dispatch delivers an event to every subscribed hook in parallel and
// waits for all deliveries to settle.
func (d *Dispatcher) Dispatch(event string, data map[string]any) {
	hooks, err := d.store.Webhooks()
	if err != nil {
		common.Logger.WithError(err).Warn("webhook fan-out skipped: cannot list subscriptions")
		return
	}

	body, err := json.Marshal(Payload{Event: event, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		common.Logger.WithError(err).Warn("webhook fan-out skipped: cannot encode payload")
		return
	}

	var wg sync.WaitGroup
	for _, hook := range hooks {
		if !hook.Subscribed(event) {
			continue
		}
		wg.Add(1)
		go func(h store.Webhook) {
			defer wg.Done()
			d.deliver(h, event, body)
		}(hook)
	}
	wg.Wait()
}

// DispatchAsync fires the fan-out without waiting.
func (d *Dispatcher) DispatchAsync(event string, data map[string]any) {
	go d.Dispatch(event, data)
}

func (d *Dispatcher) deliver(hook store.Webhook, event string, body []byte) {
	req, err := http.NewRequest(http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		common.Logger.WithError(err).WithField("url", hook.URL).Warn("webhook delivery failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeliveryHeader, uuid.NewString())
	req.Header.Set("X-Infrakt-Event", event)
	if hook.Secret != "" {
		req.Header.Set(security.SignatureHeader, security.SignBody(body, hook.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		common.Logger.WithError(err).WithField("url", hook.URL).Warn("webhook delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		common.Logger.WithFields(map[string]any{
			"url":    hook.URL,
			"status": resp.StatusCode,
			"event":  event,
		}).Warn("webhook delivery rejected")
	}
}
