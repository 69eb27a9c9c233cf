// Package builder assembles an EmergencyRecord when a patient signals
// distress.
//
// Building never fails because of geolocation: the fix is bounded by a
// timeout and any failure yields a record with an unknown (nil) location
// plus a notice for the user. Only an invalid profile, a cancelled caller
// context or id exhaustion returns an error.
package builder
