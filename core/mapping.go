package core

import "time"

// Mapping associates a tenant phone number with its configuration.
// A mapping is either an UnboundMapping (a placeholder with no document yet)
// or a BoundMapping (attached to exactly one document).
type Mapping interface {
	MappingID() ID
	TenantPhone() string
	mapping()
}

// UnboundMapping is a tenant placeholder created before any document exists.
type UnboundMapping struct {
	ID           ID
	Phone        string
	Intent       string
	SystemPrompt string
	CreatedAt    time.Time
}

// BoundMapping attaches a document and delivery credentials to a tenant.
type BoundMapping struct {
	ID           ID
	Phone        string
	DocumentID   DocumentID
	Intent       string
	SystemPrompt string
	Credentials  Credentials
	CreatedAt    time.Time
}

func (m UnboundMapping) MappingID() ID       { return m.ID }
func (m UnboundMapping) TenantPhone() string { return m.Phone }
func (UnboundMapping) mapping()              {}

func (m BoundMapping) MappingID() ID       { return m.ID }
func (m BoundMapping) TenantPhone() string { return m.Phone }
func (BoundMapping) mapping()              {}

// Bind fills a placeholder with a document. The mapping keeps its identity;
// a non-empty intent replaces the placeholder's intent.
func (m UnboundMapping) Bind(doc DocumentID, creds Credentials, intent string) BoundMapping {
	if intent == "" {
		intent = m.Intent
	}
	return BoundMapping{
		ID:           m.ID,
		Phone:        m.Phone,
		DocumentID:   doc,
		Intent:       intent,
		SystemPrompt: m.SystemPrompt,
		Credentials:  creds,
		CreatedAt:    m.CreatedAt,
	}
}

// MappingKind discriminates the persisted form of a Mapping.
type MappingKind string

const (
	MappingUnbound MappingKind = "unbound"
	MappingBound   MappingKind = "bound"
)

// MappingRecord is the flat persisted form of a Mapping.
type MappingRecord struct {
	ID           ID          `json:"id"`
	Kind         MappingKind `json:"kind"`
	Phone        string      `json:"phone"`
	DocumentID   DocumentID  `json:"document_id,omitempty"`
	Intent       string      `json:"intent,omitempty"`
	SystemPrompt string      `json:"system_prompt,omitempty"`
	Credentials  Credentials `json:"credentials"`
	CreatedAt    time.Time   `json:"created_at"`
}

// RecordOf flattens a mapping for storage.
func RecordOf(m Mapping) MappingRecord {
	switch v := m.(type) {
	case UnboundMapping:
		return MappingRecord{
			ID:           v.ID,
			Kind:         MappingUnbound,
			Phone:        v.Phone,
			Intent:       v.Intent,
			SystemPrompt: v.SystemPrompt,
			CreatedAt:    v.CreatedAt,
		}
	case BoundMapping:
		return MappingRecord{
			ID:           v.ID,
			Kind:         MappingBound,
			Phone:        v.Phone,
			DocumentID:   v.DocumentID,
			Intent:       v.Intent,
			SystemPrompt: v.SystemPrompt,
			Credentials:  v.Credentials,
			CreatedAt:    v.CreatedAt,
		}
	}
	return MappingRecord{}
}

// Mapping restores the variant from its persisted form.
func (r MappingRecord) Mapping() Mapping {
	if r.Kind == MappingBound {
		return BoundMapping{
			ID:           r.ID,
			Phone:        r.Phone,
			DocumentID:   r.DocumentID,
			Intent:       r.Intent,
			SystemPrompt: r.SystemPrompt,
			Credentials:  r.Credentials,
			CreatedAt:    r.CreatedAt,
		}
	}
	return UnboundMapping{
		ID:           r.ID,
		Phone:        r.Phone,
		Intent:       r.Intent,
		SystemPrompt: r.SystemPrompt,
		CreatedAt:    r.CreatedAt,
	}
}

// TenantSettings are the tenant-wide fields shared by every mapping of a phone.
type TenantSettings struct {
	Intent       *string
	SystemPrompt *string
	Credentials  *Credentials
}

// Apply returns m with the non-nil settings applied. Credentials only apply
// to bound mappings.
func (s TenantSettings) Apply(m Mapping) Mapping {
	switch v := m.(type) {
	case UnboundMapping:
		if s.Intent != nil {
			v.Intent = *s.Intent
		}
		if s.SystemPrompt != nil {
			v.SystemPrompt = *s.SystemPrompt
		}
		return v
	case BoundMapping:
		if s.Intent != nil {
			v.Intent = *s.Intent
		}
		if s.SystemPrompt != nil {
			v.SystemPrompt = *s.SystemPrompt
		}
		if s.Credentials != nil {
			v.Credentials = *s.Credentials
		}
		return v
	}
	return m
}

// Tenant is the resolved view of a phone number's mappings.
type Tenant struct {
	Phone        string
	Intent       string
	SystemPrompt string
	Credentials  Credentials
	Documents    []DocumentID
}

// ResolveTenant folds a phone's mappings, oldest first, into a Tenant.
// The first mapping is authoritative for intent, prompt and credentials;
// credentials come from the first bound mapping.
func ResolveTenant(phone string, mappings []Mapping) Tenant {
	t := Tenant{Phone: phone}
	credsSet := false
	for i, m := range mappings {
		switch v := m.(type) {
		case UnboundMapping:
			if i == 0 {
				t.Intent, t.SystemPrompt = v.Intent, v.SystemPrompt
			}
		case BoundMapping:
			if i == 0 {
				t.Intent, t.SystemPrompt = v.Intent, v.SystemPrompt
			}
			if !credsSet {
				t.Credentials = v.Credentials
				credsSet = true
			}
			t.Documents = append(t.Documents, v.DocumentID)
		}
	}
	return t
}
