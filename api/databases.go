package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"infrakt.dev/common"
	"infrakt.dev/core"
	"infrakt.dev/store"
)

type createDatabaseRequest struct {
	Name   string `json:"name"`
	Engine string `json:"engine"`
}

type createDatabaseResponse struct {
	Deployment  *store.Deployment         `json:"deployment"`
	Credentials *core.DatabaseCredentials `json:"credentials"`
}

func (s *Server) handleCreateDatabase(c echo.Context) error {
	var req createDatabaseRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	d, creds, err := s.Core.CreateDatabase(c.Param("server"), req.Name, req.Engine)
	if err != nil {
		return err
	}
	// The only time the generated credentials leave the control plane
	// in the clear.
	return c.JSON(http.StatusCreated, createDatabaseResponse{Deployment: d, Credentials: creds})
}

func (s *Server) handleBackupDatabase(c echo.Context) error {
	filename, err := s.Core.BackupDatabase(c.Param("server"), c.Param("app"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"filename": filename})
}

func (s *Server) handleListBackups(c echo.Context) error {
	files, err := s.Core.ListBackups(c.Param("server"), c.Param("app"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, files)
}

func (s *Server) handleRestoreBackup(c echo.Context) error {
	if err := s.Core.RestoreDatabase(c.Param("server"), c.Param("app"), c.Param("filename")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type scheduleRequest struct {
	Cron          string `json:"cron"`
	RetentionDays int    `json:"retention_days"`
}

func (s *Server) handleScheduleBackups(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	if err := s.Core.ScheduleBackups(c.Param("server"), c.Param("app"), req.Cron, req.RetentionDays); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUnscheduleBackups(c echo.Context) error {
	if err := s.Core.UnscheduleBackups(c.Param("server"), c.Param("app")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRemoteBackups(c echo.Context) error {
	objects, err := s.Core.RemoteBackups(c.Param("server"), c.Param("app"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, objects)
}

func (s *Server) handleFetchRemoteBackup(c echo.Context) error {
	if err := s.Core.FetchRemoteBackup(c.Param("server"), c.Param("app"), c.Param("filename")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
