// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. All artifact identities are this
// size.
//
// Hash implements encoding.TextMarshaler and encoding.TextUnmarshaler,
// so it serializes as the canonical 64-character hex string in both
// CBOR (via lib/codec's TextMarshalerTextString option) and JSON.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures that the same input bytes produce different
// hashes in different contexts, preventing cross-domain collisions.
type domainKey [32]byte

// Domain separation keys. These are fixed constants; changing them
// invalidates all existing hashes in that domain. The byte values are
// the ASCII encoding of the domain name, zero-padded to 32 bytes.
// Readable ASCII makes the keys inspectable in hex dumps and debuggers
// without sacrificing any cryptographic property (BLAKE3 keyed mode
// treats the key as an opaque 32-byte value).
var (
	objectDomainKey = domainKey{
		'd', 'a', 't', 'a', 'p', 'r', 'e', 's', 's', '.', 'a', 'r', 't', 'i', 'f', 'a',
		'c', 't', '.', 'o', 'b', 'j', 'e', 'c', 't', 0, 0, 0, 0, 0, 0, 0,
	}

	tagNameDomainKey = domainKey{
		'd', 'a', 't', 'a', 'p', 'r', 'e', 's', 's', '.', 'a', 'r', 't', 'i', 'f', 'a',
		'c', 't', '.', 't', 'a', 'g', '.', 'n', 'a', 'm', 'e', 0, 0, 0, 0, 0,
	}
)

// HashObject computes the object-domain BLAKE3 keyed hash of the given
// content. This is the artifact identity: always computed on
// uncompressed bytes, so the same dataset produces the same hash
// regardless of which compression codec stored it.
func HashObject(content []byte) Hash {
	return keyedHash(objectDomainKey, content)
}

// FormatHash returns the hex-encoded string representation of a hash.
// This is the canonical format used in metadata, logs, and CLI output.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing artifact hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("artifact hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// RefPrefix is the prefix of short artifact references.
const RefPrefix = "art-"

// FormatRef returns the short artifact reference for an object hash:
// the "art-" prefix followed by the first 12 hex characters.
func FormatRef(hash Hash) string {
	return RefPrefix + hex.EncodeToString(hash[:6])
}

// String returns the canonical hex representation.
func (h Hash) String() string {
	return FormatHash(h)
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(FormatHash(h)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// keyedHash computes the BLAKE3 keyed hash with the given domain key.
func keyedHash(key domainKey, data []byte) Hash {
	// NewKeyed requires exactly 32 bytes, which domainKey guarantees.
	// The error is only returned for wrong key length, so this cannot
	// fail with our fixed-size type.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("artifact: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}
