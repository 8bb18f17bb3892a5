// observer.go - Progress notifications of the facade.

package client

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"shielder/internal/shielder"
)

// Operation is a facade operation.
type Operation string

const (
	OpShield   Operation = "shield"
	OpWithdraw Operation = "withdraw"
	OpSync     Operation = "sync"
)

// Stage tags where an operation failed.
type Stage string

const (
	StageGeneration Stage = "generation"
	StageSending    Stage = "sending"
	StageSyncing    Stage = "syncing"
)

// GeneratedCalldata summarizes verified calldata. Payload is the action's calldata
// bundle.
type GeneratedCalldata struct {
	Kind        shielder.EventKind
	Token       shielder.Token
	Amount      *big.Int
	ProtocolFee *big.Int
	ProvingTime time.Duration
	Payload     any
}

// Observer receives facade progress.
//
// For one operation CalldataGenerated is called before CalldataSent, and Error is
// always the last call of a failed operation. NewTransaction may repeat a transaction
// that an earlier sync already reported.
type Observer interface {
	CalldataGenerated(op Operation, cd GeneratedCalldata)
	CalldataSent(op Operation, txHash common.Hash)
	NewTransaction(tx shielder.ShielderTransaction)
	Error(err error, stage Stage, op Operation)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) CalldataGenerated(Operation, GeneratedCalldata) {}
func (NopObserver) CalldataSent(Operation, common.Hash) {}
func (NopObserver) NewTransaction(shielder.ShielderTransaction) {}
func (NopObserver) Error(error, Stage, Operation) {}
