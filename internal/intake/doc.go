// Package intake drives the responder side of an incident.
//
// Machine is the intake state machine:
//
//	Idle --StartScan--> Scanning --Deliver(ok)--> RecordReceived --Resolve--> Resolved
//	                    Scanning --Cancel-------> Idle
//
// Every entry into Scanning issues a Ticket. A result delivered with a
// ticket from an earlier scan (one that was cancelled) is dropped, so a late
// camera frame or network reply never lands in a view the responder has
// left. A malformed payload keeps the machine in Scanning for a retry.
// Resolved is terminal.
//
// Sources produce scanned text: a camera behind a capability probe, manual
// entry, and built-in demo data. Chain tries them in order, turning
// environmental failures into notices.
package intake
