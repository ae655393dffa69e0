package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal"
	"github.com/go-chi/render"
)

// ErrResponse is the JSON error body.
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	Message        string `json:"error"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errBadRequest(msg string) *ErrResponse {
	return &ErrResponse{HTTPStatusCode: http.StatusBadRequest, Message: msg}
}

// errorResponse maps a domain error onto a status code. Authentication
// failures are reported without their reason.
func errorResponse(err error) *ErrResponse {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return &ErrResponse{HTTPStatusCode: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, common.ErrAuthentication):
		return &ErrResponse{HTTPStatusCode: http.StatusBadGateway, Message: common.ErrAuthentication.Error()}
	case errors.Is(err, common.ErrParse):
		return &ErrResponse{HTTPStatusCode: http.StatusBadGateway, Message: err.Error()}
	case errors.Is(err, common.ErrNavigationTimeout),
		errors.Is(err, common.ErrRetriesExhausted),
		errors.Is(err, context.DeadlineExceeded):
		return &ErrResponse{HTTPStatusCode: http.StatusGatewayTimeout, Message: err.Error()}
	case errors.Is(err, portal.ErrClosed), errors.Is(err, context.Canceled):
		return &ErrResponse{HTTPStatusCode: http.StatusServiceUnavailable, Message: err.Error()}
	}
	return &ErrResponse{HTTPStatusCode: http.StatusInternalServerError, Message: "internal error"}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse(err)
	if resp.HTTPStatusCode >= http.StatusInternalServerError {
		a.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "status", resp.HTTPStatusCode, "error", err)
	}
	_ = render.Render(w, r, resp)
}
