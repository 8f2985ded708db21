package core

import (
	"errors"
	"testing"
)

func TestValidateInboundEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   *InboundEvent
		wantErr error
	}{
		{
			name:    "valid event",
			event:   &InboundEvent{ID: "wamid.1", From: "15550001", To: "15559999", Text: "hi"},
			wantErr: nil,
		},
		{
			name:    "nil event",
			event:   nil,
			wantErr: ErrValidation,
		},
		{
			name:    "missing id",
			event:   &InboundEvent{From: "15550001", To: "15559999"},
			wantErr: ErrValidation,
		},
		{
			name:    "missing from",
			event:   &InboundEvent{ID: "wamid.1", To: "15559999"},
			wantErr: ErrValidation,
		},
		{
			name:    "blank to",
			event:   &InboundEvent{ID: "wamid.1", From: "15550001", To: "   "},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInboundEvent(tt.event)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateInboundEvent() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateInboundEvent() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateScope(t *testing.T) {
	if err := ValidateScope(AllDocuments()); err != nil {
		t.Errorf("all-documents scope should be valid, got %v", err)
	}
	if err := ValidateScope(DocumentScope("a", "b")); err != nil {
		t.Errorf("explicit scope should be valid, got %v", err)
	}
	if err := ValidateScope(DocumentScope()); !errors.Is(err, ErrEmptyScope) {
		t.Errorf("empty scope error = %v, want ErrEmptyScope", err)
	}
	if err := ValidateScope(Scope{}); !errors.Is(err, ErrEmptyScope) {
		t.Errorf("zero scope error = %v, want ErrEmptyScope", err)
	}
	if err := ValidateScope(DocumentScope("a", "")); !errors.Is(err, ErrValidation) {
		t.Errorf("scope with blank id error = %v, want ErrValidation", err)
	}
}

func TestValidateTurn(t *testing.T) {
	valid := &ConversationTurn{Key: PhoneKey("1", "2"), Role: RoleUser, Content: "hi"}
	if err := ValidateTurn(valid); err != nil {
		t.Errorf("ValidateTurn() unexpected error = %v", err)
	}

	badRole := &ConversationTurn{Key: SessionKey("s"), Role: "system"}
	if err := ValidateTurn(badRole); !errors.Is(err, ErrValidation) {
		t.Errorf("bad role error = %v, want ErrValidation", err)
	}

	halfPair := &ConversationTurn{Key: ConversationKey{Business: "1"}, Role: RoleUser}
	if err := ValidateTurn(halfPair); !errors.Is(err, ErrValidation) {
		t.Errorf("half pair error = %v, want ErrValidation", err)
	}
}

func TestValidateKind(t *testing.T) {
	for _, k := range []Kind{KindPDF, KindImage} {
		if err := ValidateKind(k); err != nil {
			t.Errorf("ValidateKind(%q) unexpected error = %v", k, err)
		}
	}
	if err := ValidateKind("docx"); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("ValidateKind(docx) error = %v, want ErrInvalidKind", err)
	}
}
