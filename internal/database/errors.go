// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package database

import (
	"errors"
	"strings"
)

// Sentinel errors returned by the data access layer. Callers branch with
// errors.Is instead of matching driver error strings.
var (
	ErrServerNotFound     = errors.New("feed server not found")
	ErrServerNameConflict = errors.New("feed server with this name already exists for the tenant")
	ErrEventNotFound      = errors.New("event not found")
	ErrAttributeNotFound  = errors.New("attribute not found")
	ErrObjectNotFound     = errors.New("object not found")
	ErrAlertNotFound      = errors.New("alert not found")
	ErrIncidentNotFound   = errors.New("incident not found")
	ErrObservableNotFound = errors.New("observable not found")

	// ErrDuplicateKey is returned when an insert violates a uniqueness
	// constraint. The conversion engine maps it to already_converted.
	ErrDuplicateKey = errors.New("duplicate key")
)

// isUniqueConstraintError checks if an error is a unique constraint violation.
// DuckDB unique constraint messages contain "UNIQUE constraint" or
// "Duplicate key".
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
