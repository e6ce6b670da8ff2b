// SPDX-License-Identifier: AGPL-3.0-only
package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JsonUnmarshal decodes tool arguments into v. Missing or null arguments
// decode as an empty object.
func JsonUnmarshal(data []byte, v interface{}) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after arguments")
	}
	return nil
}
