// Package inbound receives order webhooks over HTTP.
//
// The Ingestor runs each request through signature verification, payload
// validation, the idempotency key pre-check and the atomic insert, then
// publishes order.created after commit. A duplicate delivery resolves to
// 200 with created=false. An idempotency key reused for a different order
// is a 409. NewRouter mounts the ingestor, the order detail query and the
// health check on a chi router.
package inbound
