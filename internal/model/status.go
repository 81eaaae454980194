package model

// ProcessingStatus is the shared ingestion lifecycle for deals and files.
// It is distinct from a deal's business status (DealStatus).
type ProcessingStatus string

const (
	StatusPending ProcessingStatus = "PENDING"
	StatusStarted ProcessingStatus = "STARTED"
	StatusSuccess ProcessingStatus = "SUCCESS"
	StatusFailure ProcessingStatus = "FAILURE"
	StatusRetry   ProcessingStatus = "RETRY"
	StatusRevoked ProcessingStatus = "REVOKED"
)

// InFlight reports whether the status represents work that has not yet
// reached a terminal outcome.
func (s ProcessingStatus) InFlight() bool {
	switch s {
	case StatusPending, StatusStarted, StatusRetry:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status can no longer change on its own.
func (s ProcessingStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusRevoked:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusStarted, StatusSuccess, StatusFailure, StatusRetry, StatusRevoked:
		return true
	default:
		return false
	}
}

// DealReady reports whether a deal has finished ingestion. A deal is ready
// only when its own processing status and the status of every attached file
// are out of flight. Recomputed on demand; callers poll rather than subscribe.
func DealReady(deal *Deal, files []File) bool {
	if deal == nil || deal.ProcessingStatus.InFlight() {
		return false
	}
	for i := range files {
		if files[i].ProcessingStatus.InFlight() {
			return false
		}
	}
	return true
}
