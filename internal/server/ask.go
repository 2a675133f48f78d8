package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mindwell/buddy/internal/answer"
)

// Asker is the pipeline entry point the handler depends on.
type Asker interface {
	Ask(ctx context.Context, req answer.Request) answer.Response
}

// AskHandler exposes the question pipeline over HTTP.
type AskHandler struct {
	Orch    Asker
	Timeout time.Duration
}

func (h *AskHandler) Register(g *echo.Group) {
	g.POST("/ask", h.ask)
}

type askRequest struct {
	Question     string `json:"question"`
	Pathname     string `json:"pathname"`
	Jurisdiction string `json:"jurisdiction"`
}

func (h *AskHandler) ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	started := time.Now()
	resp := h.Orch.Ask(ctx, answer.Request{
		Question:     req.Question,
		Pathname:     req.Pathname,
		Jurisdiction: req.Jurisdiction,
		CallerKey:    c.RealIP(),
		RequestID:    uuid.New().String(),
	})
	observeAsk(resp, time.Since(started))

	return c.JSON(http.StatusOK, resp)
}
