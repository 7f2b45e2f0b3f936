package util

import "github.com/google/uuid"

// NewReqID generates a correlation ID for jobs and request logs, replacing
// the hand-rolled crypto/rand+hex encoding with google/uuid, the ID
// generator the rest of the retrieved pack reaches for (e.g.
// slicingmelon-gobypass403/go.mod).
func NewReqID() string {
	return uuid.NewString()
}
