// Package retry implements C7: wraps an asynchronous, idempotent
// operation with bounded retry, deterministic exponential backoff, and
// exception filtering, per §4.6.
package retry

import (
	"context"
	"time"

	"github.com/aosanya/agentorch/internal/expr"
)

// Policy mirrors the Retry policy entity in §3.
type Policy struct {
	MaxRetryCount       int
	BaseDelay           time.Duration
	MaxDelay            time.Duration
	Multiplier          float64
	RetryableExceptions []string // type names; empty means "all"
	RetryCondition      string   // boolean expression over vars + $exception_type/$exception_message
}

// SingleAttempt is used for steps that carry no retry policy.
func SingleAttempt() Policy {
	return Policy{MaxRetryCount: 0, BaseDelay: 0, MaxDelay: 0, Multiplier: 1.0}
}

// Attempt records one invocation of the wrapped operation.
type Attempt struct {
	Number        int
	Success       bool
	Exception     error
	ExecutionTime time.Duration
	NextDelay     time.Duration
}

// Result is the full outcome of Do.
type Result struct {
	Attempts       []Attempt
	TotalAttempts  int
	TotalElapsed   time.Duration
	Success        bool
	Value          string
	FinalException error
}

// Operation is the wrapped unit of work. exceptionType is the caller-
// supplied type name used to check RetryableExceptions; pass "" if the
// caller does not distinguish exception types.
type Operation func(ctx context.Context) (result string, exceptionType string, err error)

// Do executes op under policy, retrying on failure per §4.6's rules.
// Delay for attempt n (first retry is n=1) is
// min(maxDelay, baseDelay * multiplier^(n-1)). The delay is interruptible
// by ctx cancellation; on cancellation Do returns at once with
// FinalException set to ctx.Err(). The failure of the last attempt stays
// in that attempt's Exception. Result has no field marking that retries
// were skipped; the last attempt's NextDelay is set but no attempt follows.
func Do(ctx context.Context, policy Policy, vars map[string]interface{}, op Operation) Result {
	var res Result
	start := time.Now()

	for n := 0; ; n++ {
		attemptStart := time.Now()
		value, excType, err := op(ctx)
		execTime := time.Since(attemptStart)

		a := Attempt{Number: n + 1, Success: err == nil, ExecutionTime: execTime}
		if err == nil {
			a.Success = true
			res.Attempts = append(res.Attempts, a)
			res.Success = true
			res.Value = value
			res.TotalAttempts = len(res.Attempts)
			res.TotalElapsed = time.Since(start)
			return res
		}

		a.Exception = err
		res.FinalException = err

		if n >= policy.MaxRetryCount {
			res.Attempts = append(res.Attempts, a)
			break
		}

		if !shouldRetry(policy, vars, excType, err) {
			res.Attempts = append(res.Attempts, a)
			break
		}

		delay := Delay(policy, n+1)
		a.NextDelay = delay
		res.Attempts = append(res.Attempts, a)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.FinalException = ctx.Err()
			res.TotalAttempts = len(res.Attempts)
			res.TotalElapsed = time.Since(start)
			return res
		case <-timer.C:
		}
	}

	res.Success = false
	res.TotalAttempts = len(res.Attempts)
	res.TotalElapsed = time.Since(start)
	return res
}

// Delay computes min(maxDelay, baseDelay * multiplier^(n-1)) for the
// n-th attempt (n=1 is the first retry). Deterministic: no jitter, so
// successive delays are non-decreasing and never exceed maxDelay
// (testable property #4).
func Delay(policy Policy, n int) time.Duration {
	if n <= 0 {
		return 0
	}
	multiplier := policy.Multiplier
	if multiplier <= 0 {
		multiplier = 1.0
	}
	factor := 1.0
	for i := 1; i < n; i++ {
		factor *= multiplier
	}
	d := time.Duration(float64(policy.BaseDelay) * factor)
	if policy.MaxDelay > 0 && d > policy.MaxDelay {
		d = policy.MaxDelay
	}
	return d
}

func shouldRetry(policy Policy, vars map[string]interface{}, excType string, err error) bool {
	if len(policy.RetryableExceptions) > 0 {
		found := false
		for _, t := range policy.RetryableExceptions {
			if t == excType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if policy.RetryCondition == "" {
		return true
	}

	condVars := make(map[string]interface{}, len(vars)+2)
	for k, v := range vars {
		condVars[k] = v
	}
	condVars["exception_type"] = excType
	condVars["exception_message"] = err.Error()

	ok, evalErr := expr.EvaluateBool(policy.RetryCondition, condVars)
	// A retryCondition that fails to evaluate counts as false: no retry.
	if evalErr != nil {
		return false
	}
	return ok
}
