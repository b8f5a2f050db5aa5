// Package version handles the quick-pay message protocol version advertised with
// each session.
package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Normalize ensures version string has "v" prefix for semver compatibility.
// Examples: "1.2.3" -> "v1.2.3", "v1.2.3" -> "v1.2.3"
func Normalize(version string) string {
	if version == "" {
		return ""
	}
	version = strings.TrimSpace(version)
	if !strings.HasPrefix(version, "v") {
		return "v" + version
	}
	return version
}

// IsValid reports whether version parses as semver, with or without the "v" prefix.
func IsValid(version string) bool {
	return semver.IsValid(Normalize(version))
}

// Major returns the major component without the "v" prefix ("1.4.0" -> "1").
// Invalid versions yield an empty string.
func Major(version string) string {
	return strings.TrimPrefix(semver.Major(Normalize(version)), "v")
}

// Compatible reports whether a session created under sessionVersion can be
// verified by a verifier that supports supported. Only the major component
// changes the signed message layout.
func Compatible(supported, sessionVersion string) bool {
	s, v := Normalize(supported), Normalize(sessionVersion)
	if !semver.IsValid(s) || !semver.IsValid(v) {
		return false
	}
	return semver.Major(s) == semver.Major(v)
}
