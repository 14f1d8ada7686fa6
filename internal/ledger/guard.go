package ledger

import (
	"fmt"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
)

// Owned is any record with an owning user.
type Owned interface {
	Owner() string
}

// assertOwns is the single ownership check run before every mutation and
// every sensitive read.
func assertOwns(resource Owned, callerID string) error {
	if callerID == "" {
		return fmt.Errorf("empty caller identity: %w", domain.ErrUnauthorized)
	}
	if resource.Owner() != callerID {
		return domain.ErrUnauthorized
	}
	return nil
}
