// Package codec turns an EmergencyRecord into QR payload text and back.
//
// # Payload format
//
//	EMERGENCY:<emergency_id>:<body>
//
// body is unpadded base64url of either the canonical JSON record or, when a
// passphrase is configured, a sealed envelope around it. Encoding is
// deterministic: the same record and settings always give the same text.
//
// # Capacity
//
// Payloads are checked against the byte-mode capacity of the largest QR
// symbol at the chosen error-correction level. Oversized payloads fail with
// fault.KindPayloadTooLarge; nothing is ever truncated.
//
// # Intake
//
// The decoder also accepts a bare body or a bare JSON object, including the
// camelCase and legacy key spellings produced by older front ends. Anything
// it cannot parse is fault.KindMalformedPayload. Expired records decode
// successfully but carry StatusExpired.
package codec
