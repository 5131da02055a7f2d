package usage

import (
	"errors"

	"github.com/ari/token-report/internal/tracker"
)

// ErrScanFailed wraps a scanner failure for either source
var ErrScanFailed = errors.New("SCAN_FAILED")

// Code returns the stable error code of an aggregation failure
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, tracker.ErrInvalidPeriod):
		return tracker.ErrInvalidPeriod.Error()
	case errors.Is(err, ErrScanFailed):
		return ErrScanFailed.Error()
	default:
		return "INTERNAL"
	}
}
