// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package models

// severityForThreatLevel maps a feed threat level to the native severity
// scale. Shared by the alert and incident conversion paths; do not fork a
// second copy of this table.
var severityForThreatLevel = map[ThreatLevel]Severity{
	ThreatLevelHigh:      SeverityCritical,
	ThreatLevelMedium:    SeverityHigh,
	ThreatLevelLow:       SeverityMedium,
	ThreatLevelUndefined: SeverityLow,
}

// SeverityForThreatLevel returns the native severity for a feed threat
// level. Unrecognized levels default to SeverityMedium.
func SeverityForThreatLevel(level ThreatLevel) Severity {
	if sev, ok := severityForThreatLevel[level]; ok {
		return sev
	}
	return SeverityMedium
}

// observableTypeForAttribute maps feed attribute types to native observable
// types. Attribute types not present here (comments, text blobs, vendor
// extensions) produce no observable and are skipped without error.
var observableTypeForAttribute = map[string]ObservableType{
	"ip-src":    ObservableIP,
	"ip-dst":    ObservableIP,
	"domain":    ObservableDomain,
	"hostname":  ObservableHostname,
	"url":       ObservableURL,
	"md5":       ObservableHashMD5,
	"sha1":      ObservableHashSHA1,
	"sha256":    ObservableHashSHA256,
	"filename":  ObservableFilename,
	"email":     ObservableEmail,
	"email-src": ObservableEmail,
	"email-dst": ObservableEmail,
}

// ObservableTypeForAttribute returns the native observable type for a feed
// attribute type. The second return is false when the type has no mapping.
func ObservableTypeForAttribute(attrType string) (ObservableType, bool) {
	t, ok := observableTypeForAttribute[attrType]
	return t, ok
}
