package observability

import (
	"time"

	"go.uber.org/zap"
)

// Field aliases so call sites need not import zap directly.

// String constructs a string log field.
func String(key, val string) zap.Field { return zap.String(key, val) }

// Int constructs an int log field.
func Int(key string, val int) zap.Field { return zap.Int(key, val) }

// Int64 constructs an int64 log field.
func Int64(key string, val int64) zap.Field { return zap.Int64(key, val) }

// Bool constructs a bool log field.
func Bool(key string, val bool) zap.Field { return zap.Bool(key, val) }

// Float64 constructs a float64 log field.
func Float64(key string, val float64) zap.Field { return zap.Float64(key, val) }

// Duration constructs a duration log field.
func Duration(key string, val time.Duration) zap.Field { return zap.Duration(key, val) }

// Error constructs an error log field.
func Error(err error) zap.Field { return zap.Error(err) }
