// Package canon produces the canonical JSON form used for QR payloads and
// record fingerprints.
//
// The encoding follows RFC 8785 ordering rules so that identical records
// always serialize to identical bytes:
//   - object keys sorted by UTF-16 code units
//   - strings NFC normalized, no HTML escaping
//   - no floats; fractional quantities use Fixed (int64 scaled by 1e6)
//   - no null; absent optional fields are omitted by the caller
//
// canon imports nothing internal.
package canon
