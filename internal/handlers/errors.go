// Package handlers implements the SDRVault HTTP operations: catalog listings,
// workspace staging and clearing, and audio file retrieval.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	sverr "github.com/sdrvault/sdrvault/internal/errors"
)

// apiError converts a core error into the huma error returned to the client.
// Typed errors keep their HTTP status; anything else is a 500. Server-side
// failures are logged with their cause, which is never sent to the client.
func apiError(logger *slog.Logger, op string, err error, details ...error) huma.StatusError {
	se, ok := sverr.As(err)
	if !ok {
		switch {
		case errors.Is(err, context.Canceled):
			// 499 is nginx's "client closed request"; the client is gone anyway.
			return huma.NewError(499, "request canceled", details...)
		case errors.Is(err, context.DeadlineExceeded):
			return huma.NewError(http.StatusGatewayTimeout, "request timed out", details...)
		}
		logger.Error("unexpected error", "op", op, "error", err)
		return huma.NewError(http.StatusInternalServerError, sverr.ErrInternal.Message, details...)
	}

	if se.HTTPStatus >= 500 {
		logger.Error("operation failed", "op", op, "code", se.Code, "error", err)
	} else {
		logger.Debug("operation rejected", "op", op, "code", se.Code, "error", err)
	}
	return huma.NewError(se.HTTPStatus, fmt.Sprintf("%s: %s", se.Code, se.Message), details...)
}

// writeError writes err as a problem+json body for handlers that bypass huma.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	apiErr := apiError(logger, op, err)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(apiErr.GetStatus())
	if encErr := json.NewEncoder(w).Encode(apiErr); encErr != nil {
		logger.Debug("writing error body failed", "op", op, "error", encErr)
	}
}
