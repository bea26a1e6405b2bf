package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/errors"
)

// writeJSON writes payload as a JSON response
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes err as an ErrorResponse with the status it carries
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	status := errors.HTTPStatusOf(appErr)

	writeJSON(w, status, &errors.ErrorResponse{
		Error:     appErr,
		RequestID: getRequestID(r),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}

func toAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	var ve *errors.ValidationErrors
	if stderrors.As(err, &ve) {
		return errors.NewValidationError(errors.CodeInvalidInput, "validation failed").
			WithDetails(ve.Error()).WithCause(ve)
	}
	if stderrors.Is(err, errors.ErrDataNotFound) || stderrors.Is(err, errors.ErrContentNotFound) {
		return errors.NewStorageError(errors.CodeDataNotFound, err.Error()).WithCause(err)
	}
	return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "Internal server error")
}

// unavailable reports a collaborator that is not configured on this server
func unavailable(what string) *errors.AppError {
	err := errors.NewConfigurationError(errors.CodeMissingField, fmt.Sprintf("%s is not configured", what))
	err.HTTPStatus = http.StatusServiceUnavailable
	return err
}

func badRequest(code, message string) *errors.AppError {
	return errors.NewValidationError(code, message)
}

// queryInt parses an optional positive integer query parameter
func queryInt(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest(errors.CodeInvalidFormat, fmt.Sprintf("%s must be a positive integer", name)).
			WithContext(name, raw)
	}
	if max > 0 && n > max {
		return 0, badRequest(errors.CodeOutOfRange, fmt.Sprintf("%s must be at most %d", name, max)).
			WithContext(name, n)
	}
	return n, nil
}

// queryList splits a comma separated query parameter, dropping blanks
func queryList(r *http.Request, name string) []string {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

func setCacheHeader(w http.ResponseWriter, hit bool) {
	if hit {
		w.Header().Set(constants.HeaderCache, "HIT")
		return
	}
	w.Header().Set(constants.HeaderCache, "MISS")
}
