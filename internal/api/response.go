package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"quantgemini/pkg/quantgemini"
)

// AnalysisFailedMessage is the only text users see for a failed analysis,
// whichever stage failed.
const AnalysisFailedMessage = "analysis failed, check the ticker or try again later"

// ErrorResponse represents an error API response with structured information.
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// newErrorResponse builds the response body and HTTP status for err.
// The internal error text is kept out of analysis failures.
func newErrorResponse(r *http.Request, err error) (int, ErrorResponse) {
	status := http.StatusInternalServerError
	response := ErrorResponse{Message: err.Error()}

	if code, ok := quantgemini.CodeOf(err); ok {
		response.ErrorCode = string(code)
		status = mapErrorCodeToHTTPStatus(code)
		if quantgemini.IsAnalysisFailure(err) {
			response.Message = AnalysisFailedMessage
		} else {
			var qErr *quantgemini.Error
			if errors.As(err, &qErr) {
				response.Message = qErr.Message
			}
		}
	}
	if r != nil {
		response.RequestID = middleware.GetReqID(r.Context())
	}
	response.Code = status
	return status, response
}

// writeErrorResponse writes err with the status its code maps to. The full
// error is recorded for the request log.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status, response := newErrorResponse(r, err)
	recordErrorMessage(w, err.Error())
	writeJSON(w, status, response)
}

// mapErrorCodeToHTTPStatus maps business error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code quantgemini.ErrorCode) int {
	switch code {
	case quantgemini.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case quantgemini.ErrCodeNotFound:
		return http.StatusNotFound
	case quantgemini.ErrCodeTransport, quantgemini.ErrCodeFormat:
		return http.StatusBadGateway
	case quantgemini.ErrCodeDatabase, quantgemini.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func recordErrorMessage(w http.ResponseWriter, message string) {
	if recorder, ok := w.(interface{ SetErrorMessage(string) }); ok {
		recorder.SetErrorMessage(message)
	}
}
