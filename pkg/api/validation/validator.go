// Zaparoo Bridge
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Bridge.
//
// Zaparoo Bridge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Bridge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Bridge.  If not, see <http://www.gnu.org/licenses/>.


// Package validation decodes and checks HTTP request bodies with
// go-playground/validator.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
	"github.com/go-playground/validator/v10"
)

var (
	ErrMissingParams = errors.New("missing params")
	ErrInvalidParams = errors.New("invalid params")
)

// MaxBodySize caps request bodies read by Decode.
const MaxBodySize = 4096

// Validator handles validation of API parameters.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator that reports fields by their JSON names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("baudrate", validateBaudRate)

	return &Validator{validate: v}
}

// DefaultValidator is a shared validator instance for API use.
var DefaultValidator = NewValidator()

// Validate validates a struct and returns a formatted error if validation fails.
func (v *Validator) Validate(params any) error {
	if err := v.validate.Struct(params); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewError(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// Decode reads a JSON object from r into dest and validates it. Unknown
// keys are rejected. Returns ErrMissingParams for an empty body,
// ErrInvalidParams when the body does not decode, or an *Error when a
// field fails validation.
func Decode[T any](r io.Reader, dest *T) error {
	dec := json.NewDecoder(io.LimitReader(r, MaxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrMissingParams
		}
		return fmt.Errorf("%w: %s", ErrInvalidParams, err.Error())
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after object", ErrInvalidParams)
	}
	return DefaultValidator.Validate(dest)
}

// validateBaudRate accepts any rate the serial adapter can be asked for.
// Non-standard rates are allowed; the driver picks the nearest divisor.
func validateBaudRate(fl validator.FieldLevel) bool {
	rate := fl.Field().Int()
	return rate >= uart.MinBaudRate && rate <= uart.MaxBaudRate
}
