package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ava-labs/avalanchego/utils/hashing"
)

// decodeHex decodes a hex string while accepting optional 0x/0X prefix.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	return hex.DecodeString(s)
}

// decodeDigest decodes a hex digest that must be exactly one hash long.
func decodeDigest(s string) ([]byte, error) {
	digest, err := decodeHex(s)
	if err != nil {
		return nil, err
	}
	if len(digest) != hashing.HashLen {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", hashing.HashLen, len(digest))
	}
	return digest, nil
}

// encodeHex formats b the way signatures and digests are printed.
func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
