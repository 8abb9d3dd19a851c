// Package core provides the business logic for shipment manifest tracking.
//
// This package is the heart of the tracker, containing all domain logic
// independent of any UI or transport layer. It can be used by web handlers,
// the CLI, or tests without modification.
//
// # Architecture
//
// A manifest flows through a fixed pipeline:
//
//  1. [DecodeGrid] or [DecodeText] turns spreadsheet bytes or pasted text into rows
//  2. [LocateHeader] finds the real header row under any title/preamble rows
//  3. [Normalizer] maps arbitrary headers onto the canonical fields using a
//     [RuleProfile] (broad, strict, or a profile loaded from YAML)
//  4. [Canonicalize] cleans carriers, classifies transport mode and drops
//     rows without a usable tracking number
//  5. [Collection] holds the admitted records in order, keyed by id
//  6. [Tracker] drives one remote lookup per selected record, sequentially
//  7. [Export] writes the selected records as CSV or xlsx
//
// [Service] ties the steps together into manifest sessions with asynchronous
// tracking runs, progress subscriptions, run history and ETA-change events.
//
// # Error Handling
//
// Decode and export failures are returned as [*DecodeError] and [*ExportError]
// and abort the whole operation. Lookup failures are row-scoped: the record is
// marked failed with status "Network Error" and the run continues.
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DEC001-DEC006: Decode errors (format, empty input, header, size)
//   - EXP001-EXP002: Export errors
//   - TRK001-TRK007: Tracking run errors (busy, cancelled, unreachable)
//   - MAN001-MAN004: Manifest, record and run lookups
//   - STO001, RATE001, REQ001: Run history storage, rate limiting, malformed requests
package core
