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

package responder

import "errors"

var (
	// ErrEventRepositoryRequired is returned when an event repository is not provided.
	ErrEventRepositoryRequired = errors.New("event repository required")

	// ErrMappingRepositoryRequired is returned when a mapping repository is not provided.
	ErrMappingRepositoryRequired = errors.New("mapping repository required")

	// ErrConversationRepositoryRequired is returned when a conversation repository is not provided.
	ErrConversationRepositoryRequired = errors.New("conversation repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrRetrieverRequired is returned when a retriever is not provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrCompleterRequired is returned when a completer is not provided.
	ErrCompleterRequired = errors.New("completer required")

	// ErrSenderRequired is returned when a delivery sender is not provided.
	ErrSenderRequired = errors.New("sender required")

	// ErrDeliveryFailed is returned when a reply was generated but could not be sent.
	// The Result still carries the generated text.
	ErrDeliveryFailed = errors.New("reply generated but delivery failed")

	// ErrBusy is returned by Submit when every worker is occupied.
	ErrBusy = errors.New("responder workers busy")

	// ErrEmptyCompletion is returned when the model produced no text.
	ErrEmptyCompletion = errors.New("no response generated")
)
