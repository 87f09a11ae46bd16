package router

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kproj6/featureserver/internal/core/fault"
	mylog "github.com/kproj6/featureserver/internal/logger"
)

type errorBody struct {
	Status        string            `json:"status"`
	Kind          string            `json:"kind"`
	Message       string            `json:"message"`
	MissingFields []string          `json:"missingFields,omitempty"`
	InvalidFields map[string]string `json:"invalidFields,omitempty"`
	RequestID     string            `json:"requestId,omitempty"`
}

// WriteError maps err onto a status code and a JSON error body. Server
// faults are logged; their cause is not sent to the client, only the request
// id that finds the log line.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	kind := fault.KindOf(err)
	body := errorBody{
		Status:    "error",
		Kind:      kind.String(),
		Message:   "internal error",
		RequestID: mylog.RequestID(r.Context()),
	}

	var fe *fault.Error
	if errors.As(err, &fe) {
		body.Message = fe.Message
		body.MissingFields = fe.Missing
		body.InvalidFields = fe.Invalid
	}
	if !kind.ClientFault() && log != nil {
		log.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "kind", kind.String(), "err", err)
	}
	writeJSON(w, kind.HTTPStatus(), body)
}
