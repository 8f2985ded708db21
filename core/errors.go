// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import "errors"

var (
	// ErrValidation indicates a request is missing required identifiers or
	// carries malformed values. Validation errors are never retried.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyDocument indicates chunking produced no non-empty chunks.
	ErrEmptyDocument = errors.New("empty document")

	// ErrMissingCredentials indicates a tenant has no delivery credentials configured.
	ErrMissingCredentials = errors.New("no delivery credentials configured for tenant")

	// ErrNoDocuments indicates no documents are mapped to a tenant.
	ErrNoDocuments = errors.New("no documents mapped to tenant")

	// ErrEmptyScope indicates an explicit document scope with no members.
	ErrEmptyScope = errors.New("document scope is empty")

	// ErrInvalidKind indicates an unsupported document kind.
	ErrInvalidKind = errors.New("invalid document kind")
)

// ValidationError names the offending field. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Field + " " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
