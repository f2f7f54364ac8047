package domain

import "context"

// Generator is the external text-generation contract. Implementations send a
// system and user prompt to an opaque chat service and return its raw text.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}
