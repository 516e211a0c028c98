package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/conduit-lang/orm/internal/orm/schema"
)

// generateKey produces a surrogate primary key for a non-incrementing type
func generateKey(t *Type) (interface{}, error) {
	switch t.desc.KeyType {
	case schema.KeyUUID:
		return uuid.NewString(), nil
	case schema.KeyULID:
		return ulid.Make().String(), nil
	case schema.KeyString:
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate key for %s: %w", t.desc.Name, err)
		}
		return hex.EncodeToString(buf), nil
	default:
		return nil, &InvalidKeyError{Entity: t.desc.Name, KeyType: string(t.desc.KeyType)}
	}
}
