// Package onion derives Tor v3 onion identities from ed25519 key pairs.
//
// A v3 address is the base32 encoding of the 32-byte public key, a 2-byte
// checksum and the version byte 0x03. The checksum is the first two bytes of
// SHA3-256(".onion checksum" || pubkey || version), per Tor's rend-spec-v3.
package onion

import (
	"encoding/base32"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Onion address constants.
const (
	// V3Length is the length of a v3 onion address without the ".onion" suffix.
	V3Length = 56

	// V3Version is the version byte for v3 onion addresses.
	V3Version = 0x03

	// Suffix is the common suffix for all onion addresses.
	Suffix = ".onion"

	// publicKeySize is the size of an ed25519 public key.
	publicKeySize = 32

	// decodedLength is pubkey (32) + checksum (2) + version (1).
	decodedLength = 35
)

// Address errors.
var (
	// ErrInvalidAddress is returned when an address is not a valid v3 onion address.
	ErrInvalidAddress = errors.New("invalid onion address")

	// ErrInvalidPublicKey is returned when a public key is not 32 bytes.
	ErrInvalidPublicKey = errors.New("invalid ed25519 public key size")
)

// v3Pattern matches a v3 hostname (56 base32 characters + .onion).
var v3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// checksumPrefix is the constant prefix hashed into the address checksum.
var checksumPrefix = []byte(".onion checksum")

// addressEncoding is RFC 4648 base32; Tor addresses are its lowercase form.
var addressEncoding = base32.StdEncoding

// computeChecksum returns the two checksum bytes for pubkey and version.
func computeChecksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	hash := sha3.Sum256(data)
	return hash[:2]
}

// AddressFromPublicKey returns the 56-character v3 address (without the
// ".onion" suffix) for an ed25519 public key.
func AddressFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != publicKeySize {
		return "", ErrInvalidPublicKey
	}

	data := make([]byte, decodedLength)
	copy(data[:32], pubkey)
	copy(data[32:34], computeChecksum(pubkey, V3Version))
	data[34] = V3Version

	return strings.ToLower(addressEncoding.EncodeToString(data)), nil
}

// HostnameFromPublicKey is AddressFromPublicKey with the ".onion" suffix.
func HostnameFromPublicKey(pubkey []byte) (string, error) {
	addr, err := AddressFromPublicKey(pubkey)
	if err != nil {
		return "", err
	}
	return addr + Suffix, nil
}

// IsValidV3Address reports whether hostname is a v3 onion hostname with a
// correct checksum and version byte. Upper case input is accepted.
func IsValidV3Address(hostname string) bool {
	_, err := PublicKeyFromAddress(hostname)
	return err == nil
}

// PublicKeyFromAddress decodes a v3 hostname (with or without the suffix)
// and returns the embedded ed25519 public key after verifying the checksum.
func PublicKeyFromAddress(address string) ([]byte, error) {
	address = strings.ToLower(address)
	if !strings.HasSuffix(address, Suffix) {
		address += Suffix
	}
	if !v3Pattern.MatchString(address) {
		return nil, ErrInvalidAddress
	}

	decoded, err := addressEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, Suffix)))
	if err != nil || len(decoded) != decodedLength {
		return nil, ErrInvalidAddress
	}

	pubkey := decoded[:32]
	checksum := decoded[32:34]
	if decoded[34] != V3Version {
		return nil, ErrInvalidAddress
	}

	want := computeChecksum(pubkey, V3Version)
	if checksum[0] != want[0] || checksum[1] != want[1] {
		return nil, ErrInvalidAddress
	}
	return pubkey, nil
}

// NormalizeAddress turns user input into a canonical v3 hostname.
//
// It lowercases, trims whitespace, strips http(s):// schemes and any path,
// query or fragment, and appends ".onion" when missing.
func NormalizeAddress(address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	address = strings.TrimPrefix(address, "https://")
	address = strings.TrimPrefix(address, "http://")

	if idx := strings.IndexAny(address, "/?#"); idx != -1 {
		address = address[:idx]
	}
	if !strings.HasSuffix(address, Suffix) {
		address += Suffix
	}

	if !IsValidV3Address(address) {
		return "", ErrInvalidAddress
	}
	return address, nil
}
