package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"infrakt.dev/common"
	"infrakt.dev/store"
)

func (s *Server) handleListServers(c echo.Context) error {
	servers, err := s.Core.Store.Servers()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, servers)
}

type addServerRequest struct {
	Name    string `json:"name"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	User    string `json:"user"`
	KeyPath string `json:"key_path"`
}

func (s *Server) handleAddServer(c echo.Context) error {
	var req addServerRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	server := &store.Server{
		Name:    req.Name,
		Host:    req.Host,
		Port:    req.Port,
		User:    req.User,
		KeyPath: req.KeyPath,
	}
	if err := s.Core.AddServer(server); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, server)
}

func (s *Server) handleServerStatus(c echo.Context) error {
	status, err := s.Core.CheckServer(c.Param("server"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleRemoveServer(c echo.Context) error {
	if err := s.Core.RemoveServer(c.Param("server")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type provisionRequest struct {
	Wipe bool `json:"wipe"`
}

func (s *Server) handleProvisionServer(c echo.Context) error {
	var req provisionRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	id, err := s.Core.ProvisionServer(c.Param("server"), req.Wipe)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]int64{"stream_id": id})
}

func (s *Server) handleServerMetrics(c echo.Context) error {
	window := 24 * time.Hour
	if raw := c.QueryParam("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return common.Validationf("invalid window %q", raw)
		}
		window = parsed
	}
	metrics, err := s.Core.ServerMetrics(c.Param("server"), window)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, metrics)
}
