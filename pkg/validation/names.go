// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database keys, file paths, or HTTP route parameters. Using these validators
// prevents injection attacks (key-space collisions, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// modelNamePattern matches valid model names.
// Allows: letters, digits, underscores, hyphens; must start alphanumeric.
// Max length: 64 characters.
var modelNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-]{0,63}$`)

// nodeNamePattern matches valid node names.
// Allows the model name characters plus dots for generated iteration
// names like flip.3. Max length: 128 characters.
var nodeNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.\-]{0,127}$`)

// ValidateModelName validates a model name used in store keys and routes.
//
// Valid names:
//   - 1-64 characters
//   - Letters a-z A-Z and digits 0-9
//   - Underscores (_) and hyphens (-) after the first character
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateModelName(model); err != nil {
//	    return nil, fmt.Errorf("invalid model: %w", err)
//	}
//	// Safe to use as a key prefix
func ValidateModelName(name string) error {
	if name == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	if !modelNamePattern.MatchString(name) {
		return fmt.Errorf("invalid model name: %q (must be 1-64 alphanumeric chars, underscores, or hyphens)", name)
	}

	return nil
}

// ValidateNodeName validates a node name for route parameters and
// display keys.
func ValidateNodeName(name string) error {
	if name == "" {
		return fmt.Errorf("node name cannot be empty")
	}

	if !nodeNamePattern.MatchString(name) {
		return fmt.Errorf("invalid node name: %q (must be 1-128 alphanumeric chars, underscores, dots, or hyphens)", name)
	}

	return nil
}

// SanitizeModelName normalizes and validates a model name.
// Returns the lowercase name if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	safeModel, err := validation.SanitizeModelName(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeModel is lowercase and validated
func SanitizeModelName(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if err := ValidateModelName(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
