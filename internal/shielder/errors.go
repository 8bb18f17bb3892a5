// errors.go - Error taxonomy of the client engine.
//
// Every error belongs to one kind sentinel; use errors.Is against the kind and
// errors.As for the typed details.

package shielder

import (
	"errors"
	"fmt"
)

// Kinds.
var (
	ErrIntegrity       = errors.New("integrity violation")
	ErrProtocolVersion = errors.New("protocol version error")
	ErrConsistency     = errors.New("consistency invariant violation")
	ErrValidation      = errors.New("validation error")
	ErrProof           = errors.New("proof error")
	ErrTransport       = errors.New("transport error")
)

// Validation failures, detected before any proof is requested.
var (
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrValidation)
	ErrFeeExceedsAmount  = fmt.Errorf("%w: fee exceeds amount", ErrValidation)
	ErrWrongPathLength   = fmt.Errorf("%w: wrong path length", ErrValidation)
	ErrAccountNotOnChain = fmt.Errorf("%w: account not on chain", ErrValidation)
	ErrNoNoteIndex       = fmt.Errorf("%w: account has no note index", ErrValidation)
	ErrNegativeBalance   = fmt.Errorf("%w: transition would make the balance negative", ErrValidation)
)

var (
	ErrVerificationFailed = fmt.Errorf("%w: proof verification failed", ErrProof)
	ErrStaleState         = fmt.Errorf("%w: account nonce must increase on update", ErrConsistency)
	ErrNoTransition       = fmt.Errorf("%w: matched event does not transition the account", ErrConsistency)

	// ErrTransactionFailed is returned when a submitted transaction is final but unsuccessful.
	ErrTransactionFailed = errors.New("transaction failed")
)

// IntegrityError reports stored data that does not belong to this seed.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string        { return "integrity violation: " + e.Reason }
func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// ConsistencyError reports an unexpected number of matching ledger events.
type ConsistencyError struct {
	What     string
	Found    int
	Expected int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("unexpected number of %s: %d, expected %d", e.What, e.Found, e.Expected)
}

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

// UnexpectedVersionInEventError is raised when an event carries an unsupported version.
type UnexpectedVersionInEventError struct {
	Version ProtocolVersion
}

func (e *UnexpectedVersionInEventError) Error() string {
	return "unexpected version in event: " + e.Version.Hex()
}

func (e *UnexpectedVersionInEventError) Is(target error) bool { return target == ErrProtocolVersion }

// VersionRejectedByContractError is raised when the ledger refuses the expected version.
type VersionRejectedByContractError struct {
	Actual   ProtocolVersion
	Expected ProtocolVersion
}

func (e *VersionRejectedByContractError) Error() string {
	return fmt.Sprintf("version rejected by contract: contract %s, caller %s", e.Actual.Hex(), e.Expected.Hex())
}

func (e *VersionRejectedByContractError) Is(target error) bool { return target == ErrProtocolVersion }

// VersionRejectedByRelayerError is raised when the relay refuses the expected version.
type VersionRejectedByRelayerError struct {
	Message string
}

func (e *VersionRejectedByRelayerError) Error() string {
	return "version rejected by relayer: " + e.Message
}

func (e *VersionRejectedByRelayerError) Is(target error) bool { return target == ErrProtocolVersion }

// OutdatedSDKError is the single outward form of every protocol version failure.
type OutdatedSDKError struct {
	Err error
}

func (e *OutdatedSDKError) Error() string        { return "outdated sdk: " + e.Err.Error() }
func (e *OutdatedSDKError) Unwrap() error        { return e.Err }
func (e *OutdatedSDKError) Is(target error) bool { return target == ErrProtocolVersion }

// ProofError wraps an oracle failure while proving an action.
type ProofError struct {
	Action string
	Err    error
}

func (e *ProofError) Error() string        { return fmt.Sprintf("failed to prove %s: %v", e.Action, e.Err) }
func (e *ProofError) Unwrap() error        { return e.Err }
func (e *ProofError) Is(target error) bool { return target == ErrProof }

// TransportError wraps a submission failure that matched no known signal.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string        { return fmt.Sprintf("failed to %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// NormalizeError turns any protocol version failure into an OutdatedSDKError and leaves
// other errors unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	var outdated *OutdatedSDKError
	if errors.As(err, &outdated) {
		return err
	}
	if errors.Is(err, ErrProtocolVersion) {
		return &OutdatedSDKError{Err: err}
	}
	return err
}
