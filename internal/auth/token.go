package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the payload signature on webhook deliveries.
const SignatureHeader = "X-Captionbot-Signature"

var (
	ErrSignatureFormat = errors.New("invalid signature format")
	ErrSignatureMAC    = errors.New("invalid signature")
	ErrSignatureStale  = errors.New("signature timestamp outside tolerance")
)

// SignPayload returns a header value of the form "t=<unix>,v1=<hex hmac>"
// where the MAC covers "<unix>.<body>".
func SignPayload(secret string, body []byte, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac(secret, ts, body))
}

// VerifyPayload checks a header produced by SignPayload. skewSeconds bounds
// how far the embedded timestamp may drift from now.
func VerifyPayload(secret, header string, body []byte, now time.Time, skewSeconds int) error {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrSignatureFormat
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return ErrSignatureFormat
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrSignatureFormat
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrSignatureFormat
	}
	if !hmac.Equal(mac(secret, ts, body), got) {
		return ErrSignatureMAC
	}
	drift := now.Unix() - unix
	if drift < 0 {
		drift = -drift
	}
	if skewSeconds > 0 && drift > int64(skewSeconds) {
		return ErrSignatureStale
	}
	return nil
}

func mac(secret, ts string, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(ts))
	m.Write([]byte("."))
	m.Write(body)
	return m.Sum(nil)
}
