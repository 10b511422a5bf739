package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"infrakt.dev/common"
	"infrakt.dev/store"
)

func (s *Server) handleListWebhooks(c echo.Context) error {
	hooks, err := s.Core.Store.Webhooks()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hooks)
}

type createWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

func (s *Server) handleCreateWebhook(c echo.Context) error {
	var req createWebhookRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return common.Validationf("webhook URL must be http(s)")
	}
	hook := &store.Webhook{
		URL:    req.URL,
		Events: strings.Join(req.Events, ","),
		Secret: req.Secret,
	}
	if err := s.Core.Store.CreateWebhook(hook); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, hook)
}

func (s *Server) handleDeleteWebhook(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return common.Validationf("invalid webhook id")
	}
	if err := s.Core.Store.DeleteWebhook(uint(id)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type sourceIntegrationRequest struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (s *Server) handleSetSourceIntegration(c echo.Context) error {
	var req sourceIntegrationRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	if err := s.Core.SetSourceIntegration(req.Username, req.Token); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteSourceIntegration(c echo.Context) error {
	if err := s.Core.Store.DeleteSourceIntegration(); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type objectStoreRequest struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Prefix    string `json:"prefix"`
}

func (s *Server) handleSetObjectStore(c echo.Context) error {
	var req objectStoreRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	if req.Bucket == "" || req.AccessKey == "" || req.SecretKey == "" {
		return common.Validationf("bucket, access key and secret key are required")
	}
	cfg := &store.ObjectStoreConfig{
		Endpoint:  req.Endpoint,
		Bucket:    req.Bucket,
		Region:    req.Region,
		AccessKey: req.AccessKey,
		Prefix:    req.Prefix,
	}
	if err := s.Core.SetObjectStore(c.Request().Context(), cfg, req.SecretKey); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
