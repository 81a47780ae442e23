// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided identifiers that are
// interpolated into database queries (Flux, SQL) or URL paths. Using these
// validators prevents injection attacks.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches tenant, team, and subject identifiers: slug-style
// lowercase alphanumerics with hyphens and underscores, 1-64 characters,
// starting with an alphanumeric.
var identifierPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,63}$`)

// ValidateTenantID validates a tenant identifier before it is used in a
// query or path.
//
// Example:
//
//	if err := validation.ValidateTenantID(tenantID); err != nil {
//	    return nil, fmt.Errorf("invalid tenant id: %w", err)
//	}
//	// Safe to interpolate into a Flux query
func ValidateTenantID(id string) error {
	return validateIdentifier("tenant id", id)
}

// ValidateTeamID validates a team identifier. Empty means "whole tenant" and
// is rejected here; callers treat empty as absent before validating.
func ValidateTeamID(id string) error {
	return validateIdentifier("team id", id)
}

// ValidateSubjectID validates an employee/subject identifier.
func ValidateSubjectID(id string) error {
	return validateIdentifier("subject id", id)
}

func validateIdentifier(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid %s format: %q (must be 1-64 lowercase alphanumeric chars, hyphens, or underscores)", kind, id)
	}
	return nil
}

// SanitizeIdentifier normalizes and validates an identifier. Returns the
// lowercase trimmed form if valid.
func SanitizeIdentifier(kind, id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if err := validateIdentifier(kind, normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
