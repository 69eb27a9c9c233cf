// Package profile loads patient medical profiles from YAML and checks them
// against an embedded CUE schema before they reach the builder.
//
// Validation runs on the normalized profile: list entries trimmed, blanks
// dropped, blood type upper-cased. A profile that passes here always passes
// record.Profile.Validate.
package profile
