// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package feed

import (
	"strconv"
	"time"
)

// searchRequest is the POST /events/restSearch body. Field names follow the
// MISP REST search contract.
type searchRequest struct {
	ReturnFormat string `json:"returnFormat"`
	From         string `json:"from,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Published    bool   `json:"published"`
}

// searchEnvelope is the restSearch response wrapper:
//
//	{"response": [{"Event": {...}}, ...]}
type searchEnvelope struct {
	Response []eventWrapper `json:"response"`
}

type eventWrapper struct {
	Event RawEvent `json:"Event"`
}

// RawEvent is one event exactly as the remote server serializes it. Numeric
// identifiers arrive as strings and Timestamp is an epoch string; use the
// parse helpers below rather than converting inline.
type RawEvent struct {
	ID            string         `json:"id"`
	UUID          string         `json:"uuid"`
	Info          string         `json:"info"`
	Date          string         `json:"date"`
	ThreatLevelID string         `json:"threat_level_id"`
	Analysis      string         `json:"analysis"`
	Distribution  string         `json:"distribution"`
	Published     bool           `json:"published"`
	Timestamp     string         `json:"timestamp"`
	Org           *RawOrg        `json:"Org,omitempty"`
	Orgc          *RawOrg        `json:"Orgc,omitempty"`
	Tags          []RawTag       `json:"Tag,omitempty"`
	Attributes    []RawAttribute `json:"Attribute,omitempty"`
	Objects       []RawObject    `json:"Object,omitempty"`
}

// RawOrg is the owning or creating organisation of an event.
type RawOrg struct {
	Name string `json:"name"`
}

// RawTag is a tag attached to an event or attribute.
type RawTag struct {
	Name string `json:"name"`
}

// RawAttribute is an atomic indicator inside an event or object.
type RawAttribute struct {
	ID           string   `json:"id"`
	EventID      string   `json:"event_id"`
	UUID         string   `json:"uuid"`
	Type         string   `json:"type"`
	Category     string   `json:"category"`
	Value        string   `json:"value"`
	ToIDS        bool     `json:"to_ids"`
	Distribution string   `json:"distribution"`
	Timestamp    string   `json:"timestamp"`
	Comment      string   `json:"comment"`
	Tags         []RawTag `json:"Tag,omitempty"`
}

// RawObject is a structured object inside an event, carrying its own nested
// attributes.
type RawObject struct {
	ID              string         `json:"id"`
	EventID         string         `json:"event_id"`
	UUID            string         `json:"uuid"`
	Name            string         `json:"name"`
	MetaCategory    string         `json:"meta-category"`
	Description     string         `json:"description"`
	TemplateUUID    string         `json:"template_uuid"`
	TemplateVersion string         `json:"template_version"`
	Distribution    string         `json:"distribution"`
	Timestamp       string         `json:"timestamp"`
	Comment         string         `json:"comment"`
	Deleted         bool           `json:"deleted"`
	Attributes      []RawAttribute `json:"Attribute,omitempty"`
}

// ParseID parses a string-typed numeric identifier. Returns 0 and false for
// empty or non-numeric input.
func ParseID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ParseIntField parses a string-typed small integer (threat level, analysis,
// distribution), falling back to the given default when absent or malformed.
func ParseIntField(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// ParseEpoch parses an epoch-seconds string into a UTC time. Returns the
// zero time for empty or malformed input.
func ParseEpoch(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// TagNames flattens raw tags into their names, dropping empties.
func TagNames(tags []RawTag) []string {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	return names
}
