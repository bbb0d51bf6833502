package auth

import "errors"

type ContextKey string

// PeerContextKey carries the authenticated peer ID through HTTP middleware.
const PeerContextKey ContextKey = "peer_id"

var (
	ErrCiphertextTooShort = errors.New("ciphertext shorter than nonce")
)
