// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityForThreatLevel(t *testing.T) {
	tests := []struct {
		name  string
		level ThreatLevel
		want  Severity
	}{
		{"high maps to critical", ThreatLevelHigh, SeverityCritical},
		{"medium maps to high", ThreatLevelMedium, SeverityHigh},
		{"low maps to medium", ThreatLevelLow, SeverityMedium},
		{"undefined maps to low", ThreatLevelUndefined, SeverityLow},
		{"unrecognized defaults to medium", ThreatLevel(99), SeverityMedium},
		{"zero defaults to medium", ThreatLevel(0), SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityForThreatLevel(tt.level))
		})
	}
}

func TestObservableTypeForAttribute(t *testing.T) {
	tests := []struct {
		attrType string
		want     ObservableType
		mapped   bool
	}{
		{"ip-src", ObservableIP, true},
		{"ip-dst", ObservableIP, true},
		{"domain", ObservableDomain, true},
		{"hostname", ObservableHostname, true},
		{"url", ObservableURL, true},
		{"md5", ObservableHashMD5, true},
		{"sha1", ObservableHashSHA1, true},
		{"sha256", ObservableHashSHA256, true},
		{"filename", ObservableFilename, true},
		{"email", ObservableEmail, true},
		{"email-src", ObservableEmail, true},
		{"email-dst", ObservableEmail, true},
		{"comment", "", false},
		{"text", "", false},
		{"vulnerability", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.attrType, func(t *testing.T) {
			got, ok := ObservableTypeForAttribute(tt.attrType)
			assert.Equal(t, tt.mapped, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
