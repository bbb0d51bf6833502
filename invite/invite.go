package invite

import (
	"encoding/base32"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/attunefm/attune/auth"
	"github.com/attunefm/attune/protocol"
)

// Token format "T2": the prefix followed by a base32 encoding (no padding,
// alphabet below) of
//
//	[version:1][salt:12][aes-gcm ciphertext][crc32:4]
//
// where the ciphertext covers a JSON payload of address, session ID and max
// peers, encrypted under a key derived from the room password. The CRC is
// computed over the ciphertext and checked before any decryption attempt.
const (
	Prefix = "T2"

	formatVersion = 2

	maxPasswordBytes = 32
	checksumBytes    = 4
)

// The alphabet drops 0/O/1/I so codes survive being read aloud.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var encoding = base32.NewEncoding(alphabet).WithPadding(base32.NoPadding)

var (
	ErrCorruptToken         = errors.New("invite code is corrupt")
	ErrAuthenticationFailed = errors.New("invite password is incorrect")
	ErrUnsupportedVersion   = errors.New("invite code version not supported")
	ErrPasswordRequired     = errors.New("a password is required")
	ErrPasswordTooLong      = errors.New("password exceeds 32 bytes")
)

// Params are the session parameters an invite carries besides the address.
type Params struct {
	SessionID string `json:"session_id"`
	MaxPeers  int    `json:"max_peers,omitempty"`
}

type payload struct {
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
	MaxPeers  int    `json:"max_peers,omitempty"`
}

// Encode produces a shareable invite token. A host cannot generate a code
// without first setting a password.
func Encode(address string, params Params, password string) (string, error) {
	if password == "" {
		return "", ErrPasswordRequired
	}
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	plaintext, err := json.Marshal(payload{
		Address:   address,
		SessionID: params.SessionID,
		MaxPeers:  params.MaxPeers,
	})
	if err != nil {
		return "", fmt.Errorf("marshal invite payload: %w", err)
	}

	salt, err := auth.NewSalt()
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	ciphertext, err := auth.AESGCMEncrypt(auth.DeriveKey(password, salt), plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt invite payload: %w", err)
	}

	raw := make([]byte, 0, 1+len(salt)+len(ciphertext)+checksumBytes)
	raw = append(raw, formatVersion)
	raw = append(raw, salt...)
	raw = append(raw, ciphertext...)
	raw = binary.BigEndian.AppendUint32(raw, crc32.ChecksumIEEE(ciphertext))

	return Prefix + encoding.EncodeToString(raw), nil
}

// Decode recovers the address and session parameters from a token. The
// checksum is verified before decryption; a checksum mismatch means the
// token text itself is damaged, while a decryption failure means the
// password is wrong.
func Decode(token string, password string) (string, Params, error) {
	if password == "" {
		return "", Params{}, ErrPasswordRequired
	}
	if len(password) > maxPasswordBytes {
		return "", Params{}, ErrPasswordTooLong
	}

	encoded, hasPrefix := strings.CutPrefix(strings.TrimSpace(token), Prefix)
	if !hasPrefix {
		return "", Params{}, ErrUnsupportedVersion
	}

	raw, err := encoding.DecodeString(encoded)
	if err != nil {
		return "", Params{}, ErrCorruptToken
	}
	if encoding.EncodeToString(raw) != encoded {
		// the final character carries unused trailing bits; a token that
		// doesn't round-trip is textually damaged even when it decodes
		return "", Params{}, ErrCorruptToken
	}
	if len(raw) < 1+auth.SaltLength+checksumBytes {
		return "", Params{}, ErrCorruptToken
	}
	if raw[0] != formatVersion {
		return "", Params{}, ErrUnsupportedVersion
	}

	salt := raw[1 : 1+auth.SaltLength]
	ciphertext := raw[1+auth.SaltLength : len(raw)-checksumBytes]
	declared := binary.BigEndian.Uint32(raw[len(raw)-checksumBytes:])

	if crc32.ChecksumIEEE(ciphertext) != declared {
		return "", Params{}, ErrCorruptToken
	}

	plaintext, err := auth.AESGCMDecrypt(auth.DeriveKey(password, salt), ciphertext)
	if err != nil {
		return "", Params{}, ErrAuthenticationFailed
	}

	var decoded payload
	if err := json.Unmarshal(plaintext, &decoded); err != nil {
		return "", Params{}, ErrCorruptToken
	}
	if decoded.MaxPeers != 0 &&
		(decoded.MaxPeers < protocol.MinMaxPeers || decoded.MaxPeers > protocol.MaxMaxPeers) {
		return "", Params{}, ErrCorruptToken
	}

	return decoded.Address, Params{
		SessionID: decoded.SessionID,
		MaxPeers:  decoded.MaxPeers,
	}, nil
}
