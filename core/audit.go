package core

import (
	"context"
)

// VerifyEventLogger records verification outcomes to an external sink (e.g., ClickHouse).
// Implementations should be non-blocking and best-effort. err is nil on success.
type VerifyEventLogger interface {
	LogVerification(ctx context.Context, issuer string, subject string, err error)
}
