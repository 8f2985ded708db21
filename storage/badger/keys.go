package badger

import (
	"encoding/binary"

	"github.com/poiesic/docreply/core"
)

// Key prefixes for different data types
const (
	documentPrefix     = "doc:"
	chunkPrefix        = "chunk:"
	mappingPrefix      = "map:"
	mappingPhonePrefix = "mapph:"
	turnPrefix         = "turn:"
	eventPrefix        = "event:"
	mappingIDSeq       = "mapseq"
	turnIDSeq          = "turnseq"
)

// keySeparator ends variable-length key segments so one phone or
// conversation key can never be a prefix of another.
const keySeparator = 0x00

func makeDocumentKey(id core.DocumentID) []byte {
	return []byte(documentPrefix + string(id))
}

// makeChunkPrefix returns the prefix shared by every chunk of a document.
// Format: prefix:documentID:
func makeChunkPrefix(id core.DocumentID) []byte {
	return []byte(chunkPrefix + string(id) + ":")
}

// makeChunkKey generates a key for a chunk.
// Format: prefix:documentID:ordinal
func makeChunkKey(id core.DocumentID, ordinal int) []byte {
	prefix := makeChunkPrefix(id)
	buf := make([]byte, len(prefix)+4)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint32(buf[offset:], uint32(ordinal))
	return buf
}

func makeMappingKey(id core.ID) []byte {
	return appendID([]byte(mappingPrefix), id)
}

// makeMappingPhonePrefix returns the prefix of a phone's mapping index.
// Format: prefix:phone\x00
func makeMappingPhonePrefix(phone string) []byte {
	buf := []byte(mappingPhonePrefix + phone)
	return append(buf, keySeparator)
}

// makeMappingPhoneKey generates a composite key for the phone index.
// Format: prefix:phone\x00mappingID
func makeMappingPhoneKey(phone string, id core.ID) []byte {
	return appendID(makeMappingPhonePrefix(phone), id)
}

// makeTurnPrefix returns the prefix of a conversation's turns.
// Format: prefix:conversationKey\x00
func makeTurnPrefix(key core.ConversationKey) []byte {
	buf := []byte(turnPrefix + key.String())
	return append(buf, keySeparator)
}

// makeTurnKey generates a key for a conversation turn.
// Format: prefix:conversationKey\x00turnID
func makeTurnKey(key core.ConversationKey, id core.ID) []byte {
	return appendID(makeTurnPrefix(key), id)
}

func makeEventKey(id string) []byte {
	return []byte(eventPrefix + id)
}

// appendID appends id in BigEndian order so lexicographic sort matches
// numeric order.
func appendID(prefix []byte, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(prefix, uint64(id))
}

// idSuffix decodes the trailing ID of an index key.
func idSuffix(key []byte) core.ID {
	if len(key) < 8 {
		return 0
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// ordinalSuffix decodes the trailing 4-byte BigEndian chunk ordinal.
func ordinalSuffix(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b[len(b)-4:])
}
