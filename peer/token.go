package peer

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RejoinToken binds a peer ID and nickname to a room so that a
// reconnecting peer can reclaim its roster identity (and with it the items
// it owns) through a fresh handshake.
func (p *Peer) RejoinToken(roomID string, secret []byte) (string, error) {
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   p.ID,
		"nick": p.Nickname,
		"room": roomID,
		"iat":  now.Unix(),
		"exp":  now.Add(24 * time.Hour).Unix(),
	}).SignedString(secret)
	if err != nil {
		return "", err
	}
	return token, nil
}

func ParseRejoinToken(tokenStr string, roomID string, secret []byte) (peerID string, nickname string, err error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
		}

		return secret, nil
	})
	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("Invalid token")
	}
	peerID, ok = claims["id"].(string)
	if !ok {
		return "", "", fmt.Errorf("Invalid token")
	}
	nickname, ok = claims["nick"].(string)
	if !ok {
		return "", "", fmt.Errorf("Invalid token")
	}
	room, ok := claims["room"].(string)
	if !ok || room != roomID {
		return "", "", fmt.Errorf("Token is for a different room")
	}

	return peerID, nickname, nil
}
