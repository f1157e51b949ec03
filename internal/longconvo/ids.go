package longconvo

import (
	"time"

	"github.com/google/uuid"
)

func newSegmentID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC()
}
