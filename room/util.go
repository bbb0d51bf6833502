package room

import (
	"crypto/rand"
	"io"
)

const codeLength = 6

// Same alphabet as the invite codec: no 0/O/1/I.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func NewCode() (string, error) {
	raw := make([]byte, codeLength)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	code := make([]byte, codeLength)
	for i, b := range raw {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code), nil
}
