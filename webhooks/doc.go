// Package webhooks authenticates inbound order webhooks.
//
// Two encodings of the same HMAC-SHA256 digest over the raw body are
// accepted: hex in X-Webhook-Signature and base64 in X-Shopify-Hmac-SHA256.
// With no secret configured the verifier runs in open mode and logs every
// request it lets through.
package webhooks
