// Package record defines the emergency record that travels from patient to
// responder, the medical profile it is built from, and identifier
// generation.
//
// A record is created once, encoded once and read-only afterwards. Sequence
// fields in MedicalSummary are always non-nil after normalization, so an
// empty list and an absent list are indistinguishable to consumers.
package record
