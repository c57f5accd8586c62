package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-orderbus/core"
)

const (
	HeaderSignature        = "X-Webhook-Signature"
	HeaderShopifySignature = "X-Shopify-Hmac-SHA256"
)

type Encoding string

const (
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
)

// Sign returns the hex HMAC-SHA256 of body.
func Sign(body []byte, secret string) string {
	return hex.EncodeToString(digest(body, secret))
}

// SignBase64 returns the base64 HMAC-SHA256 of body.
func SignBase64(body []byte, secret string) string {
	return base64.StdEncoding.EncodeToString(digest(body, secret))
}

// Verify checks signature against the HMAC-SHA256 of body. An empty secret
// accepts everything; otherwise an empty or malformed signature fails.
func Verify(body []byte, signature string, encoding Encoding, secret string) bool {
	key := secretKey(secret)
	if key == nil {
		return true
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}

	var decoded []byte
	var err error
	switch encoding {
	case EncodingBase64:
		decoded, err = base64.StdEncoding.DecodeString(signature)
	default:
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(decoded, hmacSum(body, key)) == 1
}

// secretKey ignores surrounding whitespace. A blank secret yields nil.
func secretKey(secret string) []byte {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil
	}
	return []byte(trimmed)
}

func digest(body []byte, secret string) []byte {
	return hmacSum(body, secretKey(secret))
}

func hmacSum(body []byte, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// HMACVerifier authenticates inbound webhook requests. The hex header is
// checked first; the Shopify base64 header is used when it is absent.
type HMACVerifier struct {
	secret string
	logger glog.Logger
}

func NewHMACVerifier(secret string, logger glog.Logger) *HMACVerifier {
	v := &HMACVerifier{
		secret: secret,
		logger: glog.Ensure(logger),
	}
	if v.Open() {
		v.logger.Warn("webhook signature verification disabled: no secret configured")
	}
	return v
}

// Open reports whether the verifier accepts unsigned requests.
func (v *HMACVerifier) Open() bool {
	return v == nil || secretKey(v.secret) == nil
}

func (v *HMACVerifier) VerifyRequest(ctx context.Context, req core.InboundRequest) error {
	if v.Open() {
		if v != nil {
			core.LogWarn(ctx, v.logger, "accepting unsigned webhook", map[string]any{
				"mode": "open",
			})
		}
		return nil
	}

	signature, encoding := pickSignature(req)
	if signature == "" {
		return core.AuthError("webhook signature header is required")
	}
	if !Verify(req.Body, signature, encoding, v.secret) {
		return core.AuthError("invalid webhook signature")
	}
	return nil
}

func pickSignature(req core.InboundRequest) (string, Encoding) {
	if value := strings.TrimSpace(req.Header(HeaderSignature)); value != "" {
		return value, EncodingHex
	}
	if value := strings.TrimSpace(req.Header(HeaderShopifySignature)); value != "" {
		return value, EncodingBase64
	}
	return "", EncodingHex
}

var _ core.SignatureVerifier = (*HMACVerifier)(nil)
