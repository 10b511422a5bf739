package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"infrakt.dev/common"
	"infrakt.dev/security"
)

func (s *Server) handleListSSHKeys(c echo.Context) error {
	keys, err := s.Core.Store.SSHKeys()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, keys)
}

type createSSHKeyRequest struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
}

func (s *Server) handleCreateSSHKey(c echo.Context) error {
	var req createSSHKeyRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	material, err := s.Core.CreateSSHKey(req.Name, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, material)
}

func (s *Server) handleRemoveSSHKey(c echo.Context) error {
	if err := s.Core.RemoveSSHKey(c.Param("name")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListDeployKeys(c echo.Context) error {
	keys, err := s.Core.DeployKeys.List()
	if err != nil {
		return err
	}
	// Hashes stay server-side.
	type view struct {
		Label     string   `json:"label"`
		CreatedAt string   `json:"created_at"`
		Scopes    []string `json:"scopes"`
	}
	out := make([]view, 0, len(keys))
	for _, k := range keys {
		out = append(out, view{
			Label:     k.Label,
			CreatedAt: k.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			Scopes:    k.Scopes,
		})
	}
	return c.JSON(http.StatusOK, out)
}

type createDeployKeyRequest struct {
	Label string `json:"label"`
}

func (s *Server) handleCreateDeployKey(c echo.Context) error {
	var req createDeployKeyRequest
	if err := c.Bind(&req); err != nil {
		return common.Validationf("invalid request body")
	}
	plaintext, err := s.Core.DeployKeys.Create(req.Label, []string{security.ScopeDeploy})
	if err != nil {
		return err
	}
	// The plaintext is shown exactly once.
	return c.JSON(http.StatusCreated, map[string]string{"label": req.Label, "key": plaintext})
}

func (s *Server) handleRevokeDeployKey(c echo.Context) error {
	if err := s.Core.DeployKeys.Revoke(c.Param("label")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
