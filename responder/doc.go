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

// Package responder answers end-user messages from a tenant's documents.
//
// Respond runs one inbound event through a fixed sequence of stages:
//
//	record -> resolve tenant -> embed -> retrieve -> assemble -> generate -> deliver
//
// Recording the event is the idempotency guard; a redelivered event ID
// returns OutcomeDuplicate without touching any other stage. Each later stage
// either moves on or ends the event with a terminal Outcome. A reply that was
// generated but could not be delivered is returned with OutcomeDeliveryFailed
// and ErrDeliveryFailed so callers keep the text.
//
// Answer serves the web chat path: the same retrieval and generation, with
// session-scoped history and no delivery.
package responder
