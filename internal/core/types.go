package core

// Status represents the outcome of a dispatched action.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusRunning
)
