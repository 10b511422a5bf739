// Package api exposes the control plane over HTTP. Every route under
// /v1 requires the platform key; the deploy-trigger route additionally
// accepts scoped deploy keys, and the push-ingest route authenticates
// by payload signature instead.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"infrakt.dev/common"
	"infrakt.dev/core"
)

// Server is the HTTP front of the control plane.
type Server struct {
	Core *core.Core
	Echo *echo.Echo
}

// New builds the echo server with standard middleware and all routes
// registered.
func New(c *core.Core) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("2M"))
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	if len(c.Config.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: c.Config.AllowedOrigins,
			AllowMethods: []string{
				http.MethodGet,
				http.MethodPost,
				http.MethodPut,
				http.MethodDelete,
				http.MethodOptions,
			},
			AllowHeaders: []string{
				echo.HeaderOrigin,
				echo.HeaderContentType,
				echo.HeaderAccept,
				"X-API-Key",
			},
		}))
	}
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(50))))

	s := &Server{Core: c, Echo: e}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.Echo

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Authenticated by payload signature, not by API key.
	e.POST("/webhooks/push", s.handlePush)
	e.POST("/webhooks/update", s.handleSelfUpdate)

	v1 := e.Group("/v1", s.requirePlatformKey)

	v1.GET("/servers", s.handleListServers)
	v1.POST("/servers", s.handleAddServer)
	v1.GET("/servers/:server", s.handleServerStatus)
	v1.DELETE("/servers/:server", s.handleRemoveServer)
	v1.POST("/servers/:server/provision", s.handleProvisionServer)
	v1.GET("/servers/:server/metrics", s.handleServerMetrics)
	v1.GET("/servers/:server/domains", s.handleListDomains)

	v1.GET("/servers/:server/apps", s.handleListApps)
	v1.POST("/servers/:server/apps", s.handleCreateApp)
	v1.GET("/servers/:server/apps/:app", s.handleAppStatus)
	v1.DELETE("/servers/:server/apps/:app", s.handleDestroyApp)
	v1.POST("/servers/:server/apps/:app/rollback", s.handleRollbackApp)
	v1.POST("/servers/:server/apps/:app/start", s.handleStartApp)
	v1.POST("/servers/:server/apps/:app/stop", s.handleStopApp)
	v1.POST("/servers/:server/apps/:app/restart", s.handleRestartApp)
	v1.GET("/servers/:server/apps/:app/logs", s.handleAppLogs)
	v1.GET("/servers/:server/apps/:app/deployments", s.handleListDeployments)

	v1.GET("/servers/:server/apps/:app/env", s.handleListEnv)
	v1.PUT("/servers/:server/apps/:app/env/:key", s.handleSetEnv)
	v1.DELETE("/servers/:server/apps/:app/env/:key", s.handleUnsetEnv)

	v1.POST("/servers/:server/databases", s.handleCreateDatabase)
	v1.POST("/servers/:server/apps/:app/backups", s.handleBackupDatabase)
	v1.GET("/servers/:server/apps/:app/backups", s.handleListBackups)
	v1.POST("/servers/:server/apps/:app/backups/:filename/restore", s.handleRestoreBackup)
	v1.PUT("/servers/:server/apps/:app/backups/schedule", s.handleScheduleBackups)
	v1.DELETE("/servers/:server/apps/:app/backups/schedule", s.handleUnscheduleBackups)
	v1.GET("/servers/:server/apps/:app/backups/remote", s.handleRemoteBackups)
	v1.POST("/servers/:server/apps/:app/backups/remote/:filename/fetch", s.handleFetchRemoteBackup)

	v1.POST("/servers/:server/apps/:app/domain", s.handleAttachDomain)
	v1.DELETE("/servers/:server/apps/:app/domain", s.handleDetachDomain)
	v1.GET("/servers/:server/apps/:app/domain/validate", s.handleValidateDomain)

	v1.GET("/keys", s.handleListSSHKeys)
	v1.POST("/keys", s.handleCreateSSHKey)
	v1.DELETE("/keys/:name", s.handleRemoveSSHKey)

	v1.GET("/ci/keys", s.handleListDeployKeys)
	v1.POST("/ci/keys", s.handleCreateDeployKey)
	v1.DELETE("/ci/keys/:label", s.handleRevokeDeployKey)

	v1.GET("/webhooks", s.handleListWebhooks)
	v1.POST("/webhooks", s.handleCreateWebhook)
	v1.DELETE("/webhooks/:id", s.handleDeleteWebhook)

	v1.PUT("/settings/source", s.handleSetSourceIntegration)
	v1.DELETE("/settings/source", s.handleDeleteSourceIntegration)
	v1.PUT("/settings/object-store", s.handleSetObjectStore)

	v1.GET("/deployments/:id", s.handleGetDeployment)
	v1.GET("/deployments/:id/stream", s.handleStreamDeployment)

	// Deploy triggers accept scoped deploy keys as well, so CI can push
	// without holding the platform key.
	e.POST("/v1/servers/:server/apps/:app/deploy", s.handleDeployApp,
		s.requireDeployAccess)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.Core.Config.Port)
	common.Logger.WithField("addr", addr).Info("http api listening")
	if err := s.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

type errorBody struct {
	Detail string `json:"detail"`
}

func statusFor(err error) int {
	switch common.KindOf(err) {
	case common.KindValidation:
		return http.StatusBadRequest
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindUnauthenticated:
		return http.StatusUnauthorized
	case common.KindForbidden:
		return http.StatusForbidden
	case common.KindConflict:
		return http.StatusConflict
	case common.KindRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := statusFor(err)
	detail := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		}
	}
	if code == http.StatusInternalServerError {
		common.Logger.WithError(err).Error("request failed")
		detail = "internal error"
	}

	if werr := c.JSON(code, errorBody{Detail: detail}); werr != nil {
		common.Logger.WithError(werr).Debug("failed to write error response")
	}
}
