package federation

import "errors"

// Configuration errors fail construction.
var (
	ErrEmptyMergePlan        = errors.New("merge plan requires at least one contribution")
	ErrDuplicateContribution = errors.New("merge plan already has a contribution from this source")
	ErrNoRules               = errors.New("projection requires at least one rule")
	ErrNoSourceName          = errors.New("projection requires a source name")
	ErrSingleRuleRequired    = errors.New("single-projection executor requires exactly one rule")
	ErrNoSources             = errors.New("federation requires at least one source projection")
	ErrInvalidRule           = errors.New("invalid projection rule")
	ErrDuplicateSource       = errors.New("source is projected more than once")
	ErrExpiredContribution   = errors.New("contribution expires before it is created")
)

// Runtime errors.
var (
	ErrExecutorClosed  = errors.New("executor is closed")
	ErrNoOwningSource  = errors.New("no source projection owns this path")
	ErrCrossSource     = errors.New("operation spans more than one source")
	ErrNotProjected    = errors.New("path is not projected into the source")
	ErrUnknownPlanType = errors.New("unknown merge plan encoding")
)
