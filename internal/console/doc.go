// Package console is the single front end for both kinds of account.
//
// A Console is parameterized by a Role, either PatientRole or
// ResponderRole, and by Capabilities describing what the host can do. The
// patient side builds and encodes a record and renders it as a QR symbol.
// The responder side scans through an intake chain chosen from the
// capabilities, renders the decoded record, and hands map and phone links
// to the operating system.
package console
