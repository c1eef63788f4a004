package generator

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// Generator is an interface that defines a method to generate a new value of type T.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator is a generator that produces UUIDv4 strings.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var _ Generator[string] = &UUIDV4Generator{}

// PrefixedGenerator produces compact identifiers in the style of the realtime
// API, such as "evt_3f2a9c...". The UUID is rendered without dashes.
type PrefixedGenerator struct {
	Prefix string
}

func (g *PrefixedGenerator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return g.Prefix + hex.EncodeToString(id[:]), nil
}

var _ Generator[string] = &PrefixedGenerator{}

// EventIDs generates ids for client events sent over the realtime socket.
func EventIDs() *PrefixedGenerator {
	return &PrefixedGenerator{Prefix: "evt_"}
}

// SessionIDs generates ids for local conversation sessions.
func SessionIDs() *PrefixedGenerator {
	return &PrefixedGenerator{Prefix: "sess_"}
}
