package recurrence

import "errors"

// Errors returned by the engine. Absent results are not errors; they are
// reported through optional.Option values.
var (
	ErrOutOfRange            = errors.New("bitset position out of range")
	ErrInvalidOrdinalWeekday = errors.New("invalid ordinal/weekday combination")
	ErrCronEvaluation        = errors.New("cron expression cannot be evaluated")
	ErrInvalidFrequency      = errors.New("invalid frequency")
	ErrInvalidAnchor         = errors.New("invalid anchor")
)
