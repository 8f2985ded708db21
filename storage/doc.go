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

// Package storage provides the storage abstraction layer for docreply.
//
// This package defines repository interfaces that decouple storage
// implementation from the ingestion and responder pipelines. Two backends
// implement Store:
//
//   - storage/badger: embedded BadgerDB store with an in-process vector scan
//   - storage/postgres: PostgreSQL with pgvector similarity search
//
// storage/redis adds a cross-host claim that sits in front of
// EventRepository.AddEvent when several responders share one channel.
//
// # Visibility
//
// Chunks are written while their document is pending and become visible to
// FindSimilar only once CommitChunks marks the document ready, so retrieval
// never sees a partially written document.
//
// # Usage
//
//	store, err := badger.NewStore("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
