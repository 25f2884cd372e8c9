package syncsvc

import (
	"errors"
	"strings"
)

type syncErrorClass int

const (
	syncTransient syncErrorClass = iota
	syncLimit
	syncPermanent
)

// classifiable lets sub-clients (e.g. internal/cloud's httpError) tag their
// own errors explicitly; syncsvc falls back to string sniffing otherwise so
// it isn't coupled to the cloud package's error type.
type classifiable interface {
	SyncErrorClass() string
}

// classifySyncError maps a secondary-backend error to one of the three
// §4.5 retry buckets.
func classifySyncError(err error) syncErrorClass {
	if err == nil {
		return syncPermanent
	}

	var c classifiable
	if errors.As(err, &c) {
		switch c.SyncErrorClass() {
		case "limit":
			return syncLimit
		case "permanent":
			return syncPermanent
		default:
			return syncTransient
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "capacity") || strings.Contains(msg, "too large") || strings.Contains(msg, "limit"):
		return syncLimit
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "not found") || strings.Contains(msg, "duplicate"):
		return syncPermanent
	default:
		return syncTransient
	}
}
