package api

import (
	"io"
	"net/http"
	"os/exec"

	"github.com/labstack/echo/v4"

	"infrakt.dev/common"
	"infrakt.dev/security"
	"infrakt.dev/webhook"
)

// handlePush ingests provider push webhooks. The response is always
// 200 with a textual reason, so providers never retry; authentication
// is the per-app payload signature, checked inside DecidePush.
func (s *Server) handlePush(c echo.Context) error {
	switch c.Request().Header.Get("X-GitHub-Event") {
	case "", "push":
	case "ping":
		return c.String(http.StatusOK, "pong")
	default:
		return c.String(http.StatusOK, "ignored: not a push event")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return common.Validationf("failed to read request body")
	}
	signature := c.Request().Header.Get(security.SignatureHeader)

	candidates, err := s.Core.Store.GitApps()
	if err != nil {
		return err
	}

	outcome := webhook.DecidePush(body, signature, candidates)
	if outcome.App != nil {
		if _, err := s.Core.DeployAppByID(outcome.App.ID); err != nil {
			common.Logger.WithError(err).WithField("app", outcome.App.Name).
				Warn("push-triggered deployment could not start")
			return c.String(http.StatusOK, "accepted but deployment could not start: "+err.Error())
		}
	}
	return c.String(http.StatusOK, outcome.Reason)
}

// execCommand is swapped out in tests.
var execCommand = exec.Command

// handleSelfUpdate re-applies the control plane's own compose file
// after verifying the shared update secret over the raw body.
func (s *Server) handleSelfUpdate(c echo.Context) error {
	cfg := s.Core.Config
	if cfg.UpdateSecret == "" || cfg.UpdateComposeFile == "" {
		return common.NotFoundf("self-update is not configured")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return common.Validationf("failed to read request body")
	}
	signature := c.Request().Header.Get(security.SignatureHeader)
	if !security.VerifySignature(body, cfg.UpdateSecret, signature) {
		return common.Forbidden("invalid update signature")
	}

	go func() {
		cmd := execCommand("docker", "compose", "-f", cfg.UpdateComposeFile, "pull")
		if out, err := cmd.CombinedOutput(); err != nil {
			common.Logger.WithError(err).WithField("output", string(out)).Error("self-update pull failed")
			return
		}
		cmd = execCommand("docker", "compose", "-f", cfg.UpdateComposeFile, "up", "-d")
		if out, err := cmd.CombinedOutput(); err != nil {
			common.Logger.WithError(err).WithField("output", string(out)).Error("self-update apply failed")
			return
		}
		common.Logger.WithField("tag", cfg.ReleaseImageTag).Info("self-update applied")
	}()

	return c.String(http.StatusAccepted, "update started")
}
