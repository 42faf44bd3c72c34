package out

import (
	"context"
	"time"
)

// JSONCache stores JSON encoded values. A miss is (false, nil).
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}
