// Package core provides the business logic for syncing spreadsheets into
// remote mailing lists.
//
// This package holds all domain logic independent of any UI or transport
// layer. It is driven by the web handlers and the CLI alike.
//
// # Architecture
//
// The package is organized around a few concepts:
//
//   - Normalizer: maps spreadsheet rows onto subscribers ([NormalizeRow]).
//   - Service: the entry point for starting runs, following their logs and
//     exporting invalid records.
//   - RunLog: the ordered, human-readable log of one run.
//   - InvalidStore: addresses the remote service rejected, per binding.
//
// # Sync Flow
//
// A run syncs one binding or every binding in declaration order:
//
//  1. The spreadsheet is read and the email column detected
//  2. Addresses already unsubscribed remotely are optionally skipped
//  3. Subscribers are imported in batches of at most [remote.MaxBatchSize],
//     paced by a rate limiter
//  4. With reconciliation enabled, remote active members absent from the
//     spreadsheet are unsubscribed
//  5. Rejected addresses are exported to a workbook
//
// A failure in one binding never stops the next. Reconciliation is skipped
// when the active member list cannot be fetched completely.
//
// # Concurrency
//
// Runs hold a slot in a [RunLimiter]; with the default single slot only one
// sync talks to the remote service at a time. Readers follow a run through
// [Service.SubscribeLog], which replays the log from the first line.
//
// # Error Handling
//
// Errors are mapped to user-friendly messages via [MapError], which returns
// a [UserMessage] with an error code, description and suggested action.
package core
