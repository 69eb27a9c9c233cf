// Package testutil holds deterministic fixtures shared by package tests:
// a settable wall clock, scripted id generators and scripted locators.
package testutil
