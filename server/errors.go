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

package server

import "errors"

var (
	// ErrStoreRequired indicates no storage backend was provided.
	ErrStoreRequired = errors.New("store is required")

	// ErrPipelineRequired indicates no ingestion pipeline was provided.
	ErrPipelineRequired = errors.New("ingestion pipeline is required")

	// ErrResponderRequired indicates no responder was provided.
	ErrResponderRequired = errors.New("responder is required")

	// ErrTenantExists indicates a placeholder was requested for a phone that
	// already has mappings.
	ErrTenantExists = errors.New("tenant already exists")
)
