// Package store is the SQLite incident ledger and demo user directory
// behind the lifeline server.
//
// Tables:
//   - users: demo accounts with bcrypt password hashes and an optional
//     medical profile stored as canonical JSON
//   - incidents: one row per emergency id (the primary key makes a
//     duplicate id an error), with the canonical record and QR payload
//   - incident_access: which responders opened an incident, first access
//     only
//
// Every row carries a seq from a logical clock seeded with the highest seq
// on disk. Queries order by seq, then by a BINARY-collated key, so results
// are stable across runs.
//
// The default path is ":memory:"; the ledger then lives only as long as the
// process.
//
// # Database Configuration
//
//   - WAL mode on file databases
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//   - one open connection, which also keeps a ":memory:" database alive
package store
