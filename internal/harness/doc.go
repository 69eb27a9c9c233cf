// Package harness replays intake drills: scripted responder sessions that
// exercise the intake state machine against real encoded records.
//
// # Drill Format
//
// Drills are YAML files:
//
//	name: expired_record
//	description: "An expired code is received but flagged"
//	start: "2026-10-16T09:30:00Z"
//	responder: r-1
//	records:
//	  alex:
//	    id: EMG20261016093000ALEX01
//	    ttl: 1h
//	    profile: { subject_id: p-1, blood_type: O+, allergies: [Penicillin] }
//	    location: { lat: 40.7128, lng: -74.006 }
//	steps:
//	  - action: advance
//	    by: 2h
//	  - action: start_scan
//	  - action: deliver
//	    record: alex
//	    expect: { outcome: received, status: expired }
//	assertions:
//	  - type: intake_state
//	    state: record_received
//	  - type: final_state
//	    table: incidents
//	    where: { emergency_id: EMG20261016093000ALEX01 }
//	    expect: { status: active }
//
// Records are built and encoded before the first step at the drill's start
// time and issued into a fresh in-memory store, the same way the server
// issues them. Steps then drive one intake machine. Receiving a record logs
// responder access and resolving it resolves the stored incident.
//
// # Steps
//
//   - start_scan, cancel, resolve: the machine transitions of the same name
//   - deliver: hand the machine a record's payload (record) or raw text (text)
//   - deliver_stale: deliver with the ticket of the scan before the current one
//   - advance: move the drill clock forward by a duration (by)
//
// An expect clause checks a step's outcome: ok, received (with an optional
// status), rejected (with an optional fault kind), stale, or refused for an
// invalid transition. Steps without expect are not checked.
//
// # Assertions
//
//   - trace_contains: an event with the action and matching fields exists
//   - trace_order: actions appear in this order
//   - trace_count: an action appears exactly N times
//   - intake_state: the machine ends in this state
//   - final_state: one store row matching where has the expected columns
//
// # Golden Traces
//
// RunWithGolden compares the canonical JSON of the transcript with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
