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

package web

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Write(t *testing.T) {
	tests := []struct {
		name   string
		vals   []interface{}
		status int
		ctype  string
		body   string
	}{
		{"nothing", []interface{}{nil, nil}, http.StatusNoContent, "", ""},
		{"string", []interface{}{nil, "hello"}, http.StatusOK, "text/plain; charset=utf-8", "hello"},
		{"bytes", []interface{}{[]byte("raw")}, http.StatusOK, "", "raw"},
		{"plain error", []interface{}{errors.New("boom"), "ignored"},
			http.StatusInternalServerError, "text/plain; charset=utf-8", "boom\n"},
		{"api error", []interface{}{NewError(http.StatusBadRequest, "bad %s", "query")},
			http.StatusBadRequest, "text/plain; charset=utf-8", "bad query\n"},
		{"json", []interface{}{map[string]int{"a": 1}}, http.StatusOK, "application/json", "{\n  \"a\": 1\n}\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Write(w, test.vals...)
			assert.Equal(t, test.status, w.Code)
			if test.ctype != "" {
				assert.Equal(t, test.ctype, w.Header().Get("Content-Type"))
			}
			assert.Equal(t, test.body, w.Body.String())
		})
	}
}

func Test_StatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusOf(NewError(http.StatusNotFound, "nope")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("x")))
}
