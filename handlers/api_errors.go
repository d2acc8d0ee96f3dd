package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/logger"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string         `json:"code"`
	Status string         `json:"status"`
	Detail string         `json:"detail"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	writeAPIErrorDetail(w, httpStatus, APIErrorDetail{Code: code, Detail: detail})
}

func writeAPIErrorDetail(w http.ResponseWriter, httpStatus int, detail APIErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	detail.Status = strconv.Itoa(httpStatus)
	_ = json.NewEncoder(w).Encode(APIErrorResponse{Errors: []APIErrorDetail{detail}})
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalid:
		return http.StatusBadRequest
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeDuplicateName, apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeNotAMember:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError renders err in the error envelope. Internal errors are
// logged and their cause is not sent to the client.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := StatusFor(code)
	if status == http.StatusInternalServerError {
		logger.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		WriteAPIError(w, status, string(apperr.CodeInternal), "internal server error")
		return
	}

	detail := APIErrorDetail{Code: string(code), Detail: err.Error()}
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		detail.Detail = ae.Message
		detail.Meta = ae.Meta
	}
	writeAPIErrorDetail(w, status, detail)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.L().Warn("error encoding JSON response", zap.Error(err))
		}
	}
}

// decodeJSON reads the request body into dst and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteAPIError(w, http.StatusBadRequest, string(apperr.CodeInvalid), "invalid request body: "+err.Error())
		return false
	}
	return true
}
