package service

import (
	"errors"
)

// ErrAlreadyClaimed is returned by TryClaim when another invocation holds
// (or has already completed) the run for this (user, logical date).
// For the scheduler this is a normal skip, not a failure.
var ErrAlreadyClaimed = errors.New("run already claimed for this user and date")

// ErrClaimFailed marks a claim attempt that could not reach or write the
// store, as opposed to losing the claim race. The scheduler reports these
// separately so a store outage does not masquerade as per-user generation
// failures.
var ErrClaimFailed = errors.New("failed to claim run")

// ErrNotPending is returned when a state transition targets a run or outbox
// entry that is no longer in the expected live state. Seen when two
// dispatchers race on the same entry; the loser treats it as a no-op.
var ErrNotPending = errors.New("row is not in a pending state")

// ErrPermanentDelivery marks delivery failures that retrying cannot fix,
// such as an invalid address or an unconfigured channel. The dispatcher
// fails such entries immediately instead of burning retry attempts.
var ErrPermanentDelivery = errors.New("permanent delivery failure")
