// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package debug

import (
	"net/http"

	"github.com/zeebo/errs"
)

// Error is default error class for debug package.
var Error = errs.Class("debug")

// ErrNotFound is returned by JSON endpoints for unknown resources.
var ErrNotFound = errs.Class("not found")

// ErrBadRequest is returned by JSON endpoints for malformed requests.
var ErrBadRequest = errs.Class("bad request")

func statusCode(err error) int {
	switch {
	case ErrNotFound.Has(err):
		return http.StatusNotFound
	case ErrBadRequest.Has(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
