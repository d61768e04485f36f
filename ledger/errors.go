package ledger

import "errors"

var (
	// ErrDuplicateVote is returned when a ledger already records a
	// decision for the proposal. Nothing is mutated.
	ErrDuplicateVote = errors.New("already voted on this proposal")

	// ErrNoWallet is returned when a cast arrives without an
	// authenticated wallet address.
	ErrNoWallet = errors.New("wallet address is required")

	// ErrInvalidVoteValue is returned for anything other than
	// "yes" or "no".
	ErrInvalidVoteValue = errors.New(`vote value must be "yes" or "no"`)
)
