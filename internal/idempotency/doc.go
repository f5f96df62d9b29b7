// Package idempotency remembers recently claimed send keys so a retried
// POST of the same message is not relayed to Bing twice.
package idempotency
