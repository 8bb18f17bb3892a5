// collaborators.go - Ledger and relay collaborators.

package shielder

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxRequest is an unsigned transaction for the caller to sign and send.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

// SendTxFunc signs and submits a transaction, returning its hash.
type SendTxFunc func(ctx context.Context, tx TxRequest) (common.Hash, error)

// NewAccountCall holds the arguments of the newAccount contract call.
type NewAccountCall struct {
	Version      ProtocolVersion
	From         common.Address
	Token        Token
	Amount       *big.Int
	NewNote      Scalar
	Prenullifier Scalar
	ProtocolFee  *big.Int
	Memo         []byte
	Proof        []byte
}

// DepositCall holds the arguments of the deposit contract call.
type DepositCall struct {
	Version          ProtocolVersion
	From             common.Address
	Token            Token
	Amount           *big.Int
	OldNullifierHash Scalar
	NewNote          Scalar
	MerkleRoot       Scalar
	ProtocolFee      *big.Int
	Memo             []byte
	Proof            []byte
}

// WithdrawCall is shared by direct submission and the relay. A relay fills in its own
// address and ignores From.
type WithdrawCall struct {
	Version          ProtocolVersion
	From             common.Address
	Token            Token
	Amount           *big.Int
	Recipient        common.Address
	RelayerAddress   common.Address
	RelayerFee       *big.Int
	OldNullifierHash Scalar
	NewNote          Scalar
	MerkleRoot       Scalar
	ProtocolFee      *big.Int
	Memo             []byte
	Proof            []byte
}

// Ledger is read and calldata access to the shielder contract.
//
// Calldata methods fail with a VersionRejectedByContractError when the contract refuses
// the call's version.
type Ledger interface {
	Address() common.Address
	// GetMerklePath returns height*arity+1 values; the last one is the root.
	GetMerklePath(ctx context.Context, noteIndex *big.Int) ([]*big.Int, error)
	// NullifierBlock returns the block that recorded the nullifier hash, if any.
	NullifierBlock(ctx context.Context, nullifierHash *big.Int) (uint64, bool, error)
	GetEventsFromBlock(ctx context.Context, block uint64) ([]ProtocolEvent, error)
	GetNewAccountEventsFromBlock(ctx context.Context, block uint64) ([]ProtocolEvent, error)
	DepositFeeBps(ctx context.Context) (*big.Int, error)
	WithdrawFeeBps(ctx context.Context) (*big.Int, error)

	NewAccountCalldata(ctx context.Context, call NewAccountCall) ([]byte, error)
	DepositCalldata(ctx context.Context, call DepositCall) ([]byte, error)
	WithdrawCalldata(ctx context.Context, call WithdrawCall) ([]byte, error)
}

// RelayResponse references a relayed transaction.
type RelayResponse struct {
	TxHash    common.Hash
	BlockHash common.Hash
}

// QuotedFees are the relay's current withdrawal fees.
type QuotedFees struct {
	BaseFee  *big.Int
	RelayFee *big.Int
	TotalFee *big.Int
}

// Relayer submits withdrawals on the user's behalf. Version refusals surface as
// VersionRejectedByRelayerError.
type Relayer interface {
	Withdraw(ctx context.Context, call WithdrawCall) (RelayResponse, error)
	QuoteFees(ctx context.Context) (QuotedFees, error)
	Address(ctx context.Context) (common.Address, error)
}

// ReceiptWaiter blocks until a transaction is final.
type ReceiptWaiter interface {
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}
