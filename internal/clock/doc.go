// Package clock provides the two notions of time used in lifeline.
//
// Wall time (Clock) stamps records and drives expiry checks; it is an
// interface so tests can pin it. Logical time (Seq) orders transcript
// entries within a process and never goes backwards.
package clock
