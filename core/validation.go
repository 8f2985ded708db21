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

import (
	"fmt"
	"strings"
)

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

func ValidateKind(kind Kind) error {
	if kind != KindPDF && kind != KindImage {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return nil
}

func ValidateInboundEvent(event *InboundEvent) error {
	if event == nil {
		return &ValidationError{Field: "event", Reason: "is nil"}
	}
	if err := required("message id", event.ID); err != nil {
		return err
	}
	if err := required("from", event.From); err != nil {
		return err
	}
	if err := required("to", event.To); err != nil {
		return err
	}
	return nil
}

func ValidateScope(scope Scope) error {
	if scope.All() {
		return nil
	}
	if len(scope.DocumentIDs()) == 0 {
		return ErrEmptyScope
	}
	for _, id := range scope.DocumentIDs() {
		if id == "" {
			return &ValidationError{Field: "scope", Reason: "contains an empty document id"}
		}
	}
	return nil
}

func ValidateTurn(turn *ConversationTurn) error {
	if turn == nil {
		return &ValidationError{Field: "turn", Reason: "is nil"}
	}
	if turn.Role != RoleUser && turn.Role != RoleAssistant {
		return &ValidationError{Field: "role", Reason: fmt.Sprintf("%q is not a valid role", turn.Role)}
	}
	if turn.Key.SessionID == "" && (turn.Key.Business == "" || turn.Key.Counterpart == "") {
		return &ValidationError{Field: "key", Reason: "needs a session id or a phone pair"}
	}
	return nil
}
