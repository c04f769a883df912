// Package login validates the username a client presents in LoginStart
// and derives the offline-mode UUID the receptionist uses as that
// player's server-authoritative identity (spec.md's Non-goals exclude
// real Mojang session authentication; this package only performs the
// same deterministic derivation the vanilla server falls back to when
// online-mode is off).
package login

import (
	"regexp"

	"github.com/google/uuid"
)

// offlinePlayerNamespace is the fixed namespace UUID the reference
// server hashes "OfflinePlayer:<username>" against (version-3, MD5)
// to get a deterministic per-username UUID.
var offlinePlayerNamespace = uuid.Nil

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)

// ValidateUsername reports whether username is an allowed login
// identifier: 1-16 characters, letters/digits/underscore only.
func ValidateUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// OfflineUUID derives the deterministic offline-mode UUID for username,
// matching the vanilla server's "OfflinePlayer:<username>" MD5-namespace
// UUID so that a given username always maps to the same identity across
// receptionist restarts.
func OfflineUUID(username string) [16]byte {
	u := uuid.NewMD5(offlinePlayerNamespace, []byte("OfflinePlayer:"+username))
	return [16]byte(u)
}
