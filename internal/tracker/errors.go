package tracker

import "errors"

// ErrInvalidPeriod is returned for any period other than today, week or month
var ErrInvalidPeriod = errors.New("INVALID_PERIOD")
