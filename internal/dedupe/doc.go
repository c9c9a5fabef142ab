// Package dedupe suppresses transport redeliveries of the same inbound event
// within a short window. It is a volatile companion to the durable forward
// ledger: the ledger decides what is forwarded, this cache decides what is
// processed at all.
package dedupe
