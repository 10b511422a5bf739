package api

import (
	"github.com/labstack/echo/v4"

	"infrakt.dev/common"
	"infrakt.dev/security"
)

const apiKeyHeader = "X-API-Key"

// requirePlatformKey gates a route on the platform key. Deploy keys
// are deliberately rejected here: they only open the deploy trigger.
func (s *Server) requirePlatformKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get(apiKeyHeader)
		if key == "" {
			return common.Unauthenticated("missing API key")
		}
		if !security.ConstantTimeEqual(key, s.Core.PlatformKey) {
			return common.Forbidden("invalid API key")
		}
		return next(c)
	}
}

// requireDeployAccess accepts the platform key or a deploy key with
// the deploy scope.
func (s *Server) requireDeployAccess(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get(apiKeyHeader)
		if key == "" {
			return common.Unauthenticated("missing API key")
		}
		if security.ConstantTimeEqual(key, s.Core.PlatformKey) {
			return next(c)
		}
		if dk, ok := s.Core.DeployKeys.Verify(key); ok && dk.HasScope(security.ScopeDeploy) {
			return next(c)
		}
		return common.Forbidden("invalid API key")
	}
}
