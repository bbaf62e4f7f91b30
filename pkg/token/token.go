// Package token signs and verifies the expiring links sent by email.
//
// A token is base64url(JSON({email,purpose,exp})) + "." + base64url(HMAC-SHA256(secret, body)),
// with exp in milliseconds since the Unix epoch. Tokens are never stored: the
// signature and the expiry are the only checks. The purpose is carried but not
// enforced here; callers compare it with the action they are about to perform.
package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/quantonganh/dailybrief/pkg/hash"
)

// Purpose is the single action a token authorizes.
type Purpose string

const (
	PurposeConfirm     Purpose = "confirm"
	PurposeUnsubscribe Purpose = "unsubscribe"
)

var (
	ErrMalformed    = errors.New("malformed token")
	ErrBadSignature = errors.New("bad signature")
	ErrExpired      = errors.New("token expired")
	ErrWrongPurpose = errors.New("wrong token purpose")
)

// Payload is the signed body of a token.
type Payload struct {
	Email   string  `json:"email"`
	Purpose Purpose `json:"purpose"`
	Exp     int64   `json:"exp"`
}

// ExpiresAt returns exp as a time.
func (p *Payload) ExpiresAt() time.Time {
	return time.UnixMilli(p.Exp)
}

// Make issues a token for email valid for ttl from now. A negative ttl yields an already expired token.
func Make(email string, purpose Purpose, secret string, ttl time.Duration) (string, error) {
	return MakeAt(email, purpose, secret, ttl, time.Now())
}

// MakeAt is Make with an explicit clock.
func MakeAt(email string, purpose Purpose, secret string, ttl time.Duration, now time.Time) (string, error) {
	p := Payload{
		Email:   strings.ToLower(strings.TrimSpace(email)),
		Purpose: purpose,
		Exp:     now.Add(ttl).UnixMilli(),
	}
	return sign(&p, secret)
}

// Verify checks the signature and expiry of t and returns its payload.
func Verify(t, secret string) (*Payload, error) {
	return VerifyAt(t, secret, time.Now())
}

// VerifyAt is Verify with an explicit clock. A token is valid while now < exp.
func VerifyAt(t, secret string, now time.Time) (*Payload, error) {
	parts := strings.Split(t, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrMalformed
	}
	body, sig := parts[0], parts[1]

	expected, err := hash.ComputeHmac256(body, secret)
	if err != nil {
		return nil, err
	}
	if !hash.Equal(sig, expected) {
		return nil, ErrBadSignature
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrMalformed
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, ErrMalformed
	}

	if now.UnixMilli() >= p.Exp {
		return nil, ErrExpired
	}

	return &p, nil
}

// VerifyPurpose is Verify followed by the purpose check every endpoint performs.
func VerifyPurpose(t, secret string, purpose Purpose) (*Payload, error) {
	p, err := Verify(t, secret)
	if err != nil {
		return nil, err
	}
	if p.Purpose != purpose {
		return nil, ErrWrongPurpose
	}
	return p, nil
}

func sign(p *Payload, secret string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", err
	}

	body := base64.RawURLEncoding.EncodeToString(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	sig, err := hash.ComputeHmac256(body, secret)
	if err != nil {
		return "", err
	}

	return body + "." + sig, nil
}
