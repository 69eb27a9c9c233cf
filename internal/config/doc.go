// Package config loads lifeline's YAML configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, LIFELINE_*
// environment variables. Command-line flags are applied on top by the cli
// package. Unknown YAML keys are rejected so that typos surface early.
package config
