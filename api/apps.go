package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"infrakt.dev/common"
	"infrakt.dev/store"
)

type createAppRequest struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Image         string `json:"image"`
	GitRepo       string `json:"git_repo"`
	Branch        string `json:"branch"`
	ComposeInline string `json:"compose_inline"`
	Port          int    `json:"port"`
	Domain        string `json:"domain"`
	HealthURL     string `json:"health_url"`
	AutoDeploy    bool   `json:"auto_deploy"`
	CPULimit      string `json:"cpu_limit"`
	MemoryLimit   string `json:"memory_limit"`
	Strategy      string `json:"strategy"`
}

func (s *Server) handleCreateApp(c echo.Context) error {
	var req createAppRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	kind, engine := store.ParseAppType(req.Type)
	app := &store.App{
		Name:          req.Name,
		Kind:          kind,
		Engine:        engine,
		Image:         req.Image,
		GitRepo:       req.GitRepo,
		Branch:        req.Branch,
		ComposeInline: req.ComposeInline,
		Port:          req.Port,
		Domain:        req.Domain,
		HealthURL:     req.HealthURL,
		AutoDeploy:    req.AutoDeploy,
		CPULimit:      req.CPULimit,
		MemoryLimit:   req.MemoryLimit,
	}
	if req.Strategy != "" {
		app.Strategy = store.DeployStrategy(req.Strategy)
	}
	if err := s.Core.CreateApp(c.Param("server"), app); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, app)
}

func (s *Server) handleListApps(c echo.Context) error {
	server, err := s.Core.Store.ServerByName(c.Param("server"))
	if err != nil {
		return err
	}
	apps, err := s.Core.Store.Apps(server.ID, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apps)
}

func (s *Server) handleAppStatus(c echo.Context) error {
	view, err := s.Core.AppStatus(c.Param("server"), c.Param("app"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleDestroyApp(c echo.Context) error {
	if err := s.Core.DestroyApp(c.Param("server"), c.Param("app")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type deployRequest struct {
	Commit string `json:"commit"`
}

func (s *Server) handleDeployApp(c echo.Context) error {
	var req deployRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	d, err := s.Core.DeployApp(c.Param("server"), c.Param("app"), req.Commit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, d)
}

func (s *Server) handleRollbackApp(c echo.Context) error {
	var req deployRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	d, err := s.Core.RollbackApp(c.Param("server"), c.Param("app"), req.Commit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, d)
}

func (s *Server) handleStartApp(c echo.Context) error {
	if err := s.Core.StartApp(c.Param("server"), c.Param("app")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStopApp(c echo.Context) error {
	if err := s.Core.StopApp(c.Param("server"), c.Param("app")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRestartApp(c echo.Context) error {
	if err := s.Core.RestartApp(c.Param("server"), c.Param("app")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAppLogs(c echo.Context) error {
	tail := 100
	if raw := c.QueryParam("tail"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return common.Validationf("invalid tail %q", raw)
		}
		tail = parsed
	}
	out, err := s.Core.AppLogs(c.Param("server"), c.Param("app"), tail)
	if err != nil {
		return err
	}
	return c.String(http.StatusOK, out)
}

func (s *Server) handleListDeployments(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return common.Validationf("invalid limit %q", raw)
		}
		limit = parsed
	}
	deployments, err := s.Core.Deployments(c.Param("server"), c.Param("app"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, deployments)
}

func (s *Server) handleGetDeployment(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return common.Validationf("invalid deployment id")
	}
	d, err := s.Core.Store.DeploymentByID(uint(id))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}
