// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package httptransport

import (
	"net/http"

	"github.com/kraklabs/changesd/internal/wfserr"
)

// ErrorPayload is the typed error object embedded in both the HTTP error
// envelope and the SSE/NDJSON error event.
type ErrorPayload struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Hint        string         `json:"hint,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	RetryAfterS int            `json:"retryAfter,omitempty"`
}

func errorPayload(err *wfserr.Error) ErrorPayload {
	return ErrorPayload{
		Code:        remapHTTPCode(err.Code),
		Message:     err.Title,
		Hint:        err.Hint,
		Details:     err.Details,
		RetryAfterS: err.RetryAfterS,
	}
}

// remapHTTPCode rewrites a handful of engine-level codes to the distinct
// wire names HTTP clients see (ENOCHANGE reads as CHANGE_NOT_FOUND);
// every other code passes through unchanged.
func remapHTTPCode(code wfserr.Code) string {
	switch code {
	case wfserr.ENoChange:
		return "CHANGE_NOT_FOUND"
	case wfserr.EBadSlug, wfserr.EPathEscape:
		return "INVALID_INPUT"
	default:
		return string(code)
	}
}

// statusForCode maps an error kind to its HTTP status.
func statusForCode(code wfserr.Code) int {
	switch code {
	case wfserr.EBadSlug, wfserr.EPathEscape, wfserr.EInvalidInput,
		wfserr.EInvalidCursorToken, wfserr.EExpiredCursorToken, wfserr.EInvalidToolName:
		return http.StatusBadRequest
	case wfserr.ENoChange, wfserr.EToolNotFound:
		return http.StatusNotFound
	case wfserr.EArchived, wfserr.ELocked:
		return http.StatusConflict
	case wfserr.EBadShapeMissingPropos, wfserr.EBadShapeMissingTasks:
		return http.StatusUnprocessableEntity
	case wfserr.EAuthenticationFailed:
		return http.StatusUnauthorized
	case wfserr.ERateLimitExceeded:
		return http.StatusTooManyRequests
	case wfserr.EResponseTooLarge:
		return http.StatusRequestEntityTooLarge
	case wfserr.ERequestTimeout:
		return http.StatusRequestTimeout
	case wfserr.EIO, wfserr.EInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
