package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/KaramelBytes/tabletalk/internal/dataset"
	"github.com/KaramelBytes/tabletalk/internal/library"
	"github.com/KaramelBytes/tabletalk/internal/logging"
	"github.com/KaramelBytes/tabletalk/internal/nlq"
	"github.com/KaramelBytes/tabletalk/internal/oracle"
	"github.com/KaramelBytes/tabletalk/internal/sqlstore"
	"github.com/KaramelBytes/tabletalk/internal/tabular"
)

type errorBody struct {
	Error string `json:"error"`
}

// errBadRequest marks client errors raised by the handlers themselves.
var errBadRequest = errors.New("bad request")

type requestError struct {
	msg string
}

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == errBadRequest }

func badRequest(msg string) error { return &requestError{msg: msg} }

func statusFor(err error) int {
	var extErr *library.ExtensionError
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, nlq.ErrEmptyQuestion),
		errors.Is(err, dataset.ErrNoDataset),
		errors.Is(err, tabular.ErrUnsupportedFormat),
		errors.Is(err, tabular.ErrParse),
		errors.Is(err, library.ErrInvalidFilename),
		errors.As(err, &extErr):
		return http.StatusBadRequest
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dataset.ErrDatasetChanged):
		return http.StatusConflict
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, sqlstore.ErrQueryExecution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, oracle.ErrUnavailable), errors.Is(err, oracle.ErrMalformedOutput):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logging.FromContext(r.Context(), s.log)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, r, status, errorBody{Error: err.Error()})
}

// writeJSON encodes v before writing the status; an encode failure is
// logged and answered with a 500.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logging.FromContext(r.Context(), s.log).Error("encode response", zap.Int("status", status), zap.Error(err))
		status = http.StatusInternalServerError
		b, _ = json.Marshal(errorBody{Error: "failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return badRequest("Invalid JSON body")
	}
	return nil
}
