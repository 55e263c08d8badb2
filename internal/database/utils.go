// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package database

import (
	"github.com/goccy/go-json"
)

// tagsToJSON serializes a tag slice for storage as JSON text.
// A nil slice stores as "[]" so scans never produce null tags.
func tagsToJSON(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// tagsFromJSON deserializes stored tag JSON. Malformed input yields an
// empty slice, not an error; tags are advisory metadata.
func tagsFromJSON(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return []string{}
	}
	if tags == nil {
		return []string{}
	}
	return tags
}

// jsonText normalizes a stored JSON value. DuckDB may hand JSON columns
// back as string, []byte, or a decoded map depending on the column type.
func jsonText(v any) string {
	if v == nil {
		return "{}"
	}
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return "{}"
		}
		return string(data)
	default:
		return "{}"
	}
}
