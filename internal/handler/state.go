package handler

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const stateTTL = 10 * time.Minute

var errBadState = errors.New("invalid oauth state")

// oauthState binds the authorize redirect to the callback: the nonce travels
// both inside the signed state parameter and in a short-lived cookie, so a
// callback forged for a different browser session fails the nonce match.
// The redirect target rides along so the callback knows where to send the
// user, without trusting an unsigned query parameter.
type oauthState struct {
	Redirect  string `json:"redirect"`
	Nonce     string `json:"nonce"`
	ExpiresAt int64  `json:"exp"`
}

// signState produces the state parameter for an authorize redirect and the
// nonce to be set as a cookie.
func signState(secret []byte, redirect string, now time.Time) (state, nonce string, err error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}
	nonce = base64.RawURLEncoding.EncodeToString(raw)

	payload, err := json.Marshal(oauthState{
		Redirect:  redirect,
		Nonce:     nonce,
		ExpiresAt: now.Add(stateTTL).Unix(),
	})
	if err != nil {
		return "", "", fmt.Errorf("encode state: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encoded))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return encoded + "." + sig, nonce, nil
}

// parseState verifies the signature and expiry of a callback state
// parameter. The decoded payload is trusted only when err is nil.
func parseState(secret []byte, state string, now time.Time) (*oauthState, error) {
	encoded, sig, ok := strings.Cut(state, ".")
	if !ok {
		return nil, errBadState
	}

	gotSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, errBadState
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encoded))
	if !hmac.Equal(gotSig, mac.Sum(nil)) {
		return nil, errBadState
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errBadState
	}
	var st oauthState
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, errBadState
	}
	if now.Unix() >= st.ExpiresAt {
		return nil, errBadState
	}
	return &st, nil
}
