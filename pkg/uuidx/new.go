package uuidx

import (
	"time"

	"github.com/google/uuid"
)

// New returns a version 7 UUID. Version 7 ids sort by creation time, which keeps
// message ids and observer handles roughly ordered in logs.
// It panics if the random source fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns New as a string.
func NewString() string {
	return New().String()
}

// Time extracts the creation time embedded in a version 7 id.
// It reports false for ids that do not parse or are not version 7.
func Time(id string) (time.Time, bool) {
	u, err := uuid.Parse(id)
	if err != nil || u.Version() != 7 {
		return time.Time{}, false
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec), true
}
