package shared

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLockHeld indicates another worker holds the requested lock.
var ErrLockHeld = errors.New("lock held by another process")

// Lock is an obtained distributed lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker obtains distributed locks.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// CompanyLockKey builds redis keys for company level critical sections such
// as the cascade delete.
func CompanyLockKey(companyID string) string {
	return fmt.Sprintf("jntims:company:%s:lock", companyID)
}
