// Package credential builds and verifies the signed payload embedded in a
// ticket's QR code.
//
// A credential is base64url(JSON{"tn","uid","exp","sig"}). The signature is
// HMAC-SHA256 over the canonical JSON of {"tn","uid","exp"} in that key
// order, base64url-encoded without padding. Verification needs only the
// shared secret, so a scanner can authenticate a ticket before touching
// storage.
package credential

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	DefaultTTL = 7 * 24 * time.Hour

	// DevelopmentSecret is used when no secret is configured. Anyone who
	// has read this source can mint valid tickets with it.
	DevelopmentSecret = "bustix-dev-ticket-secret-do-not-use-in-production"
)

// Claims is the verified content of a credential.
type Claims struct {
	TicketNumber string
	UserID       string
	ExpiresAt    time.Time
}

type payload struct {
	TN  string `json:"tn"`
	UID string `json:"uid"`
	Exp int64  `json:"exp"`
}

type envelope struct {
	TN  *string `json:"tn"`
	UID *string `json:"uid"`
	Exp *int64  `json:"exp"`
	Sig *string `json:"sig"`
}

type signed struct {
	TN  string `json:"tn"`
	UID string `json:"uid"`
	Exp int64  `json:"exp"`
	Sig string `json:"sig"`
}

type Config struct {
	Secret string
	TTL    time.Duration
	Now    func() time.Time
}

type Codec struct {
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	insecure bool
}

func New(cfg Config) *Codec {
	c := &Codec{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		now:    cfg.Now,
	}

	if cfg.Secret == "" || cfg.Secret == DevelopmentSecret {
		c.secret = []byte(DevelopmentSecret)
		c.insecure = true
	}

	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}

	if c.now == nil {
		c.now = time.Now
	}

	return c
}

// Insecure reports whether the codec signs with the public development
// secret.
func (c *Codec) Insecure() bool {
	return c.insecure
}

// Encode mints a credential for ticketNumber owned by userID, valid for the
// codec TTL starting at now.
func (c *Codec) Encode(ticketNumber, userID string, now time.Time) (string, error) {
	const op = "credential.Codec.Encode"

	if ticketNumber == "" || userID == "" {
		return "", fmt.Errorf("%s: ticket number and user id are required", op)
	}

	p := payload{
		TN:  ticketNumber,
		UID: userID,
		Exp: now.Add(c.ttl).UnixMilli(),
	}

	sig, err := c.sign(p)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	raw, err := canonicalJSON(signed{TN: p.TN, UID: p.UID, Exp: p.Exp, Sig: sig})
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode verifies a credential and returns its claims. Failures are one of
// ErrMalformed, ErrIncomplete, ErrInvalidSignature or ErrExpired, checked in
// that order. Expiry is only reported for a genuine signature.
func (c *Codec) Decode(credential string) (*Claims, error) {
	const op = "credential.Codec.Decode"

	raw, err := decodeBase64URL(credential)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, ErrMalformed)
	}

	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if env.TN == nil || env.UID == nil || env.Exp == nil || env.Sig == nil ||
		*env.TN == "" || *env.UID == "" || *env.Sig == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrIncomplete)
	}

	p := payload{TN: *env.TN, UID: *env.UID, Exp: *env.Exp}

	want, err := c.mac(p)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	got, err := decodeBase64URL(*env.Sig)
	if err != nil || !hmac.Equal(got, want) {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidSignature)
	}

	if c.now().UnixMilli() > p.Exp {
		return nil, fmt.Errorf("%s:%w", op, ErrExpired)
	}

	return &Claims{
		TicketNumber: p.TN,
		UserID:       p.UID,
		ExpiresAt:    time.UnixMilli(p.Exp),
	}, nil
}

// parseEnvelope matches keys exactly. encoding/json struct decoding folds
// case, which would let "TN" stand in for "tn".
func parseEnvelope(raw []byte) (envelope, error) {
	var (
		env    envelope
		fields map[string]json.RawMessage
	)

	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return env, ErrMalformed
	}

	for key, dst := range map[string]any{"tn": &env.TN, "uid": &env.UID, "exp": &env.Exp, "sig": &env.Sig} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return env, ErrMalformed
		}
	}

	return env, nil
}

func (c *Codec) sign(p payload) (string, error) {
	sum, err := c.mac(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

func (c *Codec) mac(p payload) ([]byte, error) {
	msg, err := canonicalJSON(p)
	if err != nil {
		return nil, err
	}

	h := hmac.New(sha256.New, c.secret)
	h.Write(msg)
	return h.Sum(nil), nil
}

// canonicalJSON encodes v in struct field order without HTML escaping or a
// trailing newline.
func canonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func decodeBase64URL(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
