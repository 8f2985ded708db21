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

package storage

import "errors"

var (
	// ErrNotFound indicates that the requested document, mapping or event
	// does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates a duplicate key violation. Recording an
	// inbound event twice surfaces as this error.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrConflict indicates a conditional write lost to a concurrent one,
	// such as binding a placeholder mapping that is already bound.
	ErrConflict = errors.New("conflicting update")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters, such as k <= 0,
	// an empty query vector or an explicitly empty scope.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrChunkCountMismatch indicates a vector update that does not cover
	// exactly the stored chunks of a document.
	ErrChunkCountMismatch = errors.New("vector count does not match chunk count")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")
)
