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

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docreply/core"
)

// Serializers for the stored records. Timestamps keep microsecond precision
// and decode as UTC.
var (
	VectorMUS           mus.Serializer[[]float32]             = ord.NewSliceSer[float32](raw.Float32)
	DocumentMUS         mus.Serializer[core.Document]         = documentSer{}
	MappingRecordMUS    mus.Serializer[core.MappingRecord]    = mappingRecordSer{}
	ConversationTurnMUS mus.Serializer[core.ConversationTurn] = conversationTurnSer{}
	InboundEventMUS     mus.Serializer[core.InboundEvent]     = inboundEventSer{}
)

var timeMUS mus.Serializer[time.Time] = raw.TimeUnixMicroUTC

// Marshal serializes v with ser.
func Marshal[T any](ser mus.Serializer[T], v T) []byte {
	buf := make([]byte, ser.Size(v))
	ser.Marshal(v, buf)
	return buf
}

// Unmarshal deserializes a value written by Marshal with the same serializer.
func Unmarshal[T any](ser mus.Serializer[T], data []byte) (*T, error) {
	v, n, err := ser.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return &v, nil
}

// reader threads the offset and first error through a sequence of field
// decodes.
type reader struct {
	bs  []byte
	n   int
	err error
}

func field[T any](r *reader, ser mus.Serializer[T]) (v T) {
	if r.err != nil {
		return
	}
	v, n, err := ser.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return
}

func id(r *reader) core.ID {
	return core.ID(field[uint64](r, varint.Uint64))
}

func str(r *reader) string {
	return field[string](r, ord.String)
}

type credentialsSer struct{}

func (credentialsSer) Marshal(v core.Credentials, bs []byte) (n int) {
	n = ord.String.Marshal(v.AuthToken, bs)
	n += ord.String.Marshal(v.Origin, bs[n:])
	return
}

func (credentialsSer) Unmarshal(bs []byte) (v core.Credentials, n int, err error) {
	r := &reader{bs: bs}
	v.AuthToken = str(r)
	v.Origin = str(r)
	return v, r.n, r.err
}

func (credentialsSer) Size(v core.Credentials) int {
	return ord.String.Size(v.AuthToken) + ord.String.Size(v.Origin)
}

func (s credentialsSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

var credentialsMUS mus.Serializer[core.Credentials] = credentialsSer{}

type documentSer struct{}

func (documentSer) Marshal(v core.Document, bs []byte) (n int) {
	n = ord.String.Marshal(string(v.ID), bs)
	n += ord.String.Marshal(v.Name, bs[n:])
	n += ord.String.Marshal(string(v.Kind), bs[n:])
	n += credentialsMUS.Marshal(v.Credentials, bs[n:])
	n += ord.String.Marshal(v.Checksum, bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	n += timeMUS.Marshal(v.CreatedAt, bs[n:])
	return
}

func (documentSer) Unmarshal(bs []byte) (v core.Document, n int, err error) {
	r := &reader{bs: bs}
	v.ID = core.DocumentID(str(r))
	v.Name = str(r)
	v.Kind = core.Kind(str(r))
	v.Credentials = field(r, credentialsMUS)
	v.Checksum = str(r)
	v.Status = core.DocumentStatus(str(r))
	v.ChunkCount = field[int](r, varint.Int)
	v.CreatedAt = field(r, timeMUS)
	return v, r.n, r.err
}

func (documentSer) Size(v core.Document) int {
	return ord.String.Size(string(v.ID)) +
		ord.String.Size(v.Name) +
		ord.String.Size(string(v.Kind)) +
		credentialsMUS.Size(v.Credentials) +
		ord.String.Size(v.Checksum) +
		ord.String.Size(string(v.Status)) +
		varint.Int.Size(v.ChunkCount) +
		timeMUS.Size(v.CreatedAt)
}

func (s documentSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type mappingRecordSer struct{}

func (mappingRecordSer) Marshal(v core.MappingRecord, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.ID), bs)
	n += ord.String.Marshal(string(v.Kind), bs[n:])
	n += ord.String.Marshal(v.Phone, bs[n:])
	n += ord.String.Marshal(string(v.DocumentID), bs[n:])
	n += ord.String.Marshal(v.Intent, bs[n:])
	n += ord.String.Marshal(v.SystemPrompt, bs[n:])
	n += credentialsMUS.Marshal(v.Credentials, bs[n:])
	n += timeMUS.Marshal(v.CreatedAt, bs[n:])
	return
}

func (mappingRecordSer) Unmarshal(bs []byte) (v core.MappingRecord, n int, err error) {
	r := &reader{bs: bs}
	v.ID = id(r)
	v.Kind = core.MappingKind(str(r))
	v.Phone = str(r)
	v.DocumentID = core.DocumentID(str(r))
	v.Intent = str(r)
	v.SystemPrompt = str(r)
	v.Credentials = field(r, credentialsMUS)
	v.CreatedAt = field(r, timeMUS)
	return v, r.n, r.err
}

func (mappingRecordSer) Size(v core.MappingRecord) int {
	return varint.Uint64.Size(uint64(v.ID)) +
		ord.String.Size(string(v.Kind)) +
		ord.String.Size(v.Phone) +
		ord.String.Size(string(v.DocumentID)) +
		ord.String.Size(v.Intent) +
		ord.String.Size(v.SystemPrompt) +
		credentialsMUS.Size(v.Credentials) +
		timeMUS.Size(v.CreatedAt)
}

func (s mappingRecordSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type conversationTurnSer struct{}

func (conversationTurnSer) Marshal(v core.ConversationTurn, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.ID), bs)
	n += ord.String.Marshal(v.Key.SessionID, bs[n:])
	n += ord.String.Marshal(v.Key.Business, bs[n:])
	n += ord.String.Marshal(v.Key.Counterpart, bs[n:])
	n += ord.String.Marshal(string(v.Role), bs[n:])
	n += ord.String.Marshal(v.Content, bs[n:])
	n += ord.String.Marshal(v.EventID, bs[n:])
	n += timeMUS.Marshal(v.Timestamp, bs[n:])
	return
}

func (conversationTurnSer) Unmarshal(bs []byte) (v core.ConversationTurn, n int, err error) {
	r := &reader{bs: bs}
	v.ID = id(r)
	v.Key.SessionID = str(r)
	v.Key.Business = str(r)
	v.Key.Counterpart = str(r)
	v.Role = core.Role(str(r))
	v.Content = str(r)
	v.EventID = str(r)
	v.Timestamp = field(r, timeMUS)
	return v, r.n, r.err
}

func (conversationTurnSer) Size(v core.ConversationTurn) int {
	return varint.Uint64.Size(uint64(v.ID)) +
		ord.String.Size(v.Key.SessionID) +
		ord.String.Size(v.Key.Business) +
		ord.String.Size(v.Key.Counterpart) +
		ord.String.Size(string(v.Role)) +
		ord.String.Size(v.Content) +
		ord.String.Size(v.EventID) +
		timeMUS.Size(v.Timestamp)
}

func (s conversationTurnSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type inboundEventSer struct{}

func (inboundEventSer) Marshal(v core.InboundEvent, bs []byte) (n int) {
	n = ord.String.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.From, bs[n:])
	n += ord.String.Marshal(v.To, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += ord.String.Marshal(string(v.Kind), bs[n:])
	n += ord.String.Marshal(v.SenderName, bs[n:])
	n += timeMUS.Marshal(v.ReceivedAt, bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += timeMUS.Marshal(v.RespondedAt, bs[n:])
	return
}

func (inboundEventSer) Unmarshal(bs []byte) (v core.InboundEvent, n int, err error) {
	r := &reader{bs: bs}
	v.ID = str(r)
	v.From = str(r)
	v.To = str(r)
	v.Text = str(r)
	v.Kind = core.EventKind(str(r))
	v.SenderName = str(r)
	v.ReceivedAt = field(r, timeMUS)
	v.Status = core.EventStatus(str(r))
	v.RespondedAt = field(r, timeMUS)
	return v, r.n, r.err
}

func (inboundEventSer) Size(v core.InboundEvent) int {
	return ord.String.Size(v.ID) +
		ord.String.Size(v.From) +
		ord.String.Size(v.To) +
		ord.String.Size(v.Text) +
		ord.String.Size(string(v.Kind)) +
		ord.String.Size(v.SenderName) +
		timeMUS.Size(v.ReceivedAt) +
		ord.String.Size(string(v.Status)) +
		timeMUS.Size(v.RespondedAt)
}

func (s inboundEventSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}
