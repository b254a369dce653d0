// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagram

import (
	"errors"
	"fmt"
)

// ErrUnknownDialect is returned when the first non-blank line is not a
// recognized diagram header.
var ErrUnknownDialect = errors.New("unknown diagram dialect")

// ParseError reports malformed diagram input with its source location.
//
// Parse never silently drops elements: every line it cannot account for
// becomes a ParseError.
type ParseError struct {
	// Line is the 1-based line number in the diagram text.
	Line int

	// Reason describes what was expected.
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("diagram parse error at line %d: %s", e.Line, e.Reason)
}

func parseErrorf(line int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
