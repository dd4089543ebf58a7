// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dist

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry operations.
var (
	// ErrUnknownFamily indicates a lookup for a family name that has
	// not been registered.
	ErrUnknownFamily = errors.New("unknown distribution family")

	// ErrDuplicateFamily indicates a registration under a name that is
	// already taken.
	ErrDuplicateFamily = errors.New("distribution family already registered")
)

// DistributionError reports an invalid parameter value or sample point
// presented to a distribution family at draw or scoring time.
//
// Structural problems (unknown parameter names, wrong shapes) are caught
// earlier, at model construction; a DistributionError means the numbers
// themselves violate the family's constraints, e.g. sigma <= 0.
type DistributionError struct {
	// Family is the family name, e.g. "normal".
	Family string

	// Param is the offending parameter name, empty when the sample
	// point itself is malformed.
	Param string

	// Reason describes the violated constraint.
	Reason string
}

// Error returns a human-readable description of the violation.
func (e *DistributionError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("distribution %q: %s", e.Family, e.Reason)
	}
	return fmt.Sprintf("distribution %q: parameter %q: %s", e.Family, e.Param, e.Reason)
}

// paramErr builds a DistributionError for a named parameter.
func paramErr(family, param, format string, args ...any) error {
	return &DistributionError{
		Family: family,
		Param:  param,
		Reason: fmt.Sprintf(format, args...),
	}
}

// pointErr builds a DistributionError for a malformed sample point.
func pointErr(family, format string, args ...any) error {
	return &DistributionError{
		Family: family,
		Reason: fmt.Sprintf(format, args...),
	}
}
