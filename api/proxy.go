package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"infrakt.dev/common"
)

type attachDomainRequest struct {
	Domain string `json:"domain"`
}

func (s *Server) handleAttachDomain(c echo.Context) error {
	var req attachDomainRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	if err := s.Core.AttachDomain(c.Param("server"), c.Param("app"), req.Domain); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDetachDomain(c echo.Context) error {
	if err := s.Core.DetachDomain(c.Param("server"), c.Param("app")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListDomains(c echo.Context) error {
	domains, err := s.Core.ListDomains(c.Param("server"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, domains)
}

func (s *Server) handleValidateDomain(c echo.Context) error {
	check, err := s.Core.ValidateDomain(c.Param("server"), c.Param("app"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, check)
}
