// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package web aids in writing HTTP servers.
package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// WriteError will write a textual error response to the supplied
// ResponseWriter with the supplied HTTP StatusCode.
func WriteError(w http.ResponseWriter, statusCode int, formatMsg string, params ...interface{}) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, formatMsg, params...)
	io.WriteString(w, "\n")
}

// HTTPWriter defines a way for a type to control how it's returned as an HTTP
// response. Values passed to Write that implement this interface will have
// their HTTPWrite function called to generate the response.
type HTTPWriter interface {
	HTTPWrite(w http.ResponseWriter)
}

// Write writes out the first non-nil value in vals as the response, so
// callers can do web.Write(w, err, result). Errors with a StatusCode method
// use that status; other errors are reported as 500s. A call with no non-nil
// values writes 204 No Content.
func Write(w http.ResponseWriter, vals ...interface{}) {
	for _, val := range vals {
		if val == nil {
			continue
		}
		switch tv := val.(type) {
		case []byte:
			w.Write(tv)
		case string:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			io.WriteString(w, tv)
		case HTTPWriter:
			tv.HTTPWrite(w)
		case error:
			WriteError(w, StatusOf(tv), "%s", tv)
		default:
			WriteJSON(w, http.StatusOK, tv)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WriteJSON writes val as an indented JSON response with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, val interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(val); err != nil {
		log.WithError(err).Warn("Unable to write JSON response")
	}
}

// StatusOf returns the HTTP status code for err: the result of its
// StatusCode method if it has one, otherwise 500.
func StatusOf(err error) int {
	if sc, ok := err.(interface{ StatusCode() int }); ok {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}
