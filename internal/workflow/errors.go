package workflow

import "errors"

// ErrRetryExhausted is recorded when a stage reaches its attempt limit on
// transient failures.
var ErrRetryExhausted = errors.New("retry attempts exhausted")
