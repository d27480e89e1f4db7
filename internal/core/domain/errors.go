package domain

import "errors"

var (
	ErrInsufficientEntryFee = errors.New("insufficient entry fee")
	ErrRaffleNotOpen        = errors.New("raffle not open")
	ErrUpkeepNotNeeded      = errors.New("upkeep not needed")
	ErrUnknownRequest       = errors.New("unknown randomness request")
	ErrCallerNotTrusted     = errors.New("caller not trusted")
	ErrTransferFailed       = errors.New("transfer failed")

	ErrInvalidPlayer       = errors.New("invalid player address")
	ErrMissingRandomWords  = errors.New("missing random words")
	ErrBalanceOverflow     = errors.New("entry amount overflows escrowed balance")
	ErrRoundNotFound       = errors.New("round not found")
	ErrPlayerIndexOutRange = errors.New("player index out of range")
)
