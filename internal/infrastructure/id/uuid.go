package id

import "github.com/google/uuid"

// UUIDGenerator satisfies the application-layer IDGenerator ports.
type UUIDGenerator struct{}

func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

func (UUIDGenerator) NewID() string { return uuid.NewString() }
