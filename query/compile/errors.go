package compile

import "errors"

// Errors caused by a malformed query description.
var (
	ErrUnknownColumn     = errors.New("unknown column")
	ErrUnknownOperator   = errors.New("unknown operator")
	ErrAmbiguousColumn   = errors.New("ambiguous column")
	ErrMissingTable      = errors.New("missing table")
	ErrUnknownWith       = errors.New("unknown WITH shape")
	ErrUnknownRelation   = errors.New("unknown relation")
	ErrCTEColumns        = errors.New("CTE column list does not match its projection")
	ErrConflictTarget    = errors.New("ON CONFLICT DO UPDATE requires a conflict target")
	ErrLateralNotAllowed = errors.New("LATERAL join is not allowed here")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidQuery      = errors.New("invalid query")
)

// Errors caused by the bind parameter limit.
var (
	ErrRowTooLarge  = errors.New("insert row exceeds the bind parameter limit")
	ErrTooManyBinds = errors.New("statement exceeds the bind parameter limit")
)

// ErrMissingWhere guards UPDATE and DELETE without a predicate.
var ErrMissingWhere = errors.New("update or delete without a where condition; set All to allow")
