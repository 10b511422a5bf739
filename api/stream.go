package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"infrakt.dev/common"
	"infrakt.dev/store"
)

// handleStreamDeployment tails a deployment (or provisioning run, for
// negative ids) over server-sent events. The backlog is replayed
// first, then live lines until the publisher finishes; the terminal
// "done" event carries the final status.
func (s *Server) handleStreamDeployment(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return common.Validationf("invalid stream id")
	}

	backlog, lines, err := s.Core.Broadcaster.Subscribe(id)
	if err != nil {
		return common.NotFoundf("no active stream for id %d", id)
	}
	defer s.Core.Broadcaster.Unsubscribe(id, lines)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	for _, line := range backlog {
		if err := writeEvent(res, "", line); err != nil {
			return nil
		}
	}

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			if line == nil {
				writeEvent(res, "done", s.finalStatus(id))
				return nil
			}
			if err := writeEvent(res, "", *line); err != nil {
				return nil
			}
		}
	}
}

func writeEvent(res *echo.Response, event, data string) error {
	if event != "" {
		if _, err := fmt.Fprintf(res, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
		return err
	}
	res.Flush()
	return nil
}

// finalStatus resolves the terminal state once the publisher has
// finished. Negative ids are provisioning runs keyed by server.
func (s *Server) finalStatus(id int64) string {
	if id < 0 {
		server, err := s.Core.Store.ServerByID(uint(-id))
		if err != nil {
			return string(store.ServerError)
		}
		return string(server.Status)
	}
	d, err := s.Core.Store.DeploymentByID(uint(id))
	if err != nil {
		return string(store.DeploymentFailed)
	}
	return string(d.Status)
}
