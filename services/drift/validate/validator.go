// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validate

import (
	"context"
	"errors"
	"fmt"

	"github.com/driftline/driftline/pkg/logging"
)

// maxRepairRounds bounds the repair loop. A diagram still rejected
// after this many repair attempts goes to manual review.
const maxRepairRounds = 3

// ValidationError is a final rejection: the diagram stayed invalid
// through every repair round.
type ValidationError struct {
	Rounds  int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("diagram invalid after %d repair rounds: %s", e.Rounds, e.Message)
}

// Validator runs diagram text through the syntax checker and a bounded
// sequence of mechanical repairs.
//
// Thread Safety: safe for concurrent use once constructed.
type Validator struct {
	checker SyntaxChecker
	repairs []Repair
	log     *logging.Logger
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithRepairs replaces the default repair sequence.
func WithRepairs(repairs []Repair) ValidatorOption {
	return func(v *Validator) { v.repairs = repairs }
}

// WithLogger attaches a logger for repair-round diagnostics.
func WithLogger(log *logging.Logger) ValidatorOption {
	return func(v *Validator) { v.log = log }
}

// NewValidator builds a validator over the given checker.
func NewValidator(checker SyntaxChecker, opts ...ValidatorOption) *Validator {
	v := &Validator{
		checker: checker,
		repairs: DefaultRepairs(),
		log:     logging.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks the diagram, repairing and rechecking on rejection.
//
// On success it returns the text that actually passed, which may differ
// from the input when a repair fired. A *ValidationError means the
// bound was exhausted; any other error is a checker availability
// failure and says nothing about the diagram itself.
func (v *Validator) Validate(ctx context.Context, text string) (string, error) {
	err := v.checker.Check(ctx, text)
	if err == nil {
		return text, nil
	}

	var rejection *CheckError
	if !errors.As(err, &rejection) {
		return "", err
	}

	current := text
	rounds := 0
	for _, repair := range v.repairs {
		if rounds >= maxRepairRounds {
			break
		}

		repaired, applied := repair.Apply(current)
		if !applied {
			continue
		}
		rounds++
		current = repaired
		v.log.Debug("reattempting syntax check after repair",
			"repair", repair.Name, "round", rounds)

		err = v.checker.Check(ctx, current)
		if err == nil {
			return current, nil
		}
		if !errors.As(err, &rejection) {
			return "", err
		}
	}

	return "", &ValidationError{Rounds: rounds, Message: rejection.Message}
}
