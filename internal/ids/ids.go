// Package ids issues identifiers for every persisted entity.
//
// Identifiers are UUIDv7 values: a 48-bit millisecond timestamp followed by
// 74 random bits, so string order follows creation order. For n identifiers
// minted within the same millisecond the probability of any collision is
// about n*n/2^75.
package ids

import "github.com/google/uuid"

// Generator mints new identifiers.
type Generator interface {
	NewID() string
}

// UUIDv7 is the production Generator.
type UUIDv7 struct{}

func (UUIDv7) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// crypto/rand failure; a v4 id keeps uniqueness but not ordering
		return uuid.NewString()
	}
	return id.String()
}

// Valid reports whether s is a well-formed identifier.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
