package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"infrakt.dev/common"
)

type setEnvRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSetEnv(c echo.Context) error {
	var req setEnvRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	if err := s.Core.SetEnv(c.Param("server"), c.Param("app"), c.Param("key"), req.Value); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUnsetEnv(c echo.Context) error {
	if err := s.Core.UnsetEnv(c.Param("server"), c.Param("app"), c.Param("key")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleListEnv returns variable names by default; values are only
// decrypted when explicitly asked for.
func (s *Server) handleListEnv(c echo.Context) error {
	if c.QueryParam("reveal") == "true" {
		values, err := s.Core.EnvValues(c.Param("server"), c.Param("app"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, values)
	}
	names, err := s.Core.EnvNames(c.Param("server"), c.Param("app"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, names)
}
