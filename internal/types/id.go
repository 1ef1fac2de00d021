// README: Opaque identifiers shared by riders, drivers and rides.
package types

import "github.com/google/uuid"

type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}

// Ptr returns a pointer to a copy of id.
func (id ID) Ptr() *ID {
	v := id
	return &v
}

// SameID reports whether two optional ids hold the same value.
func SameID(a, b *ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
