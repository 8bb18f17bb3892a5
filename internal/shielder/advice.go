// advice.go - Per-action proof advice and public inputs.

package shielder

// NewAccountAdvice is the witness of a new-account proof.
type NewAccountAdvice struct {
	NoteVersion    Scalar
	ID             Scalar
	Nullifier      Scalar
	TokenAddress   Scalar
	InitialDeposit Scalar
	CallerAddress  Scalar
	ProtocolFee    Scalar
}

// NewAccountPublicInputs are the public inputs of a NewAccount proof.
type NewAccountPublicInputs struct {
	HNote          Scalar
	Prenullifier   Scalar
	InitialDeposit Scalar
	CallerAddress  Scalar
	TokenAddress   Scalar
	ProtocolFee    Scalar
}

// DepositAdvice is the witness of a deposit proof. Path excludes the root.
type DepositAdvice struct {
	NoteVersion   Scalar
	ID            Scalar
	NullifierOld  Scalar
	BalanceOld    Scalar
	TokenAddress  Scalar
	Path          []Scalar
	Value         Scalar
	CallerAddress Scalar
	NullifierNew  Scalar
	ProtocolFee   Scalar
}

// DepositPublicInputs are the public inputs of a Deposit proof.
type DepositPublicInputs struct {
	MerkleRoot    Scalar
	HNullifierOld Scalar
	HNoteNew      Scalar
	Value         Scalar
	CallerAddress Scalar
	TokenAddress  Scalar
	ProtocolFee   Scalar
}

// WithdrawAdvice is the witness of a withdraw proof. Path excludes the root.
type WithdrawAdvice struct {
	NoteVersion  Scalar
	ID           Scalar
	NullifierOld Scalar
	BalanceOld   Scalar
	TokenAddress Scalar
	Path         []Scalar
	Value        Scalar
	NullifierNew Scalar
	Commitment   Scalar
	ProtocolFee  Scalar
}

// WithdrawPublicInputs are the public inputs of a Withdraw proof.
type WithdrawPublicInputs struct {
	MerkleRoot    Scalar
	HNullifierOld Scalar
	HNoteNew      Scalar
	Value         Scalar
	TokenAddress  Scalar
	Commitment    Scalar
	ProtocolFee   Scalar
}
