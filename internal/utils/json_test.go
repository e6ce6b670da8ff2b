// SPDX-License-Identifier: AGPL-3.0-only
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJsonUnmarshal(t *testing.T) {
	type params struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}

	tests := []struct {
		name    string
		input   string
		want    params
		wantErr bool
	}{
		{"empty", "", params{}, false},
		{"null", " null ", params{}, false},
		{"fields", `{"id":"1","count":2}`, params{ID: "1", Count: 2}, false},
		{"unknown field", `{"id":"1","extra":true}`, params{ID: "1"}, false},
		{"wrong type", `{"count":"two"}`, params{}, true},
		{"trailing data", `{"id":"1"} {"id":"2"}`, params{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got params
			err := JsonUnmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
