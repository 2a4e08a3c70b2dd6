package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type TxStatus string

const (
	TxStatusIdle    TxStatus = "idle"
	TxStatusPending TxStatus = "pending"
	TxStatusSuccess TxStatus = "success"
	TxStatusError   TxStatus = "error"
)

func (s TxStatus) IsTerminal() bool {
	return s == TxStatusSuccess || s == TxStatusError
}

// ErrorKind classifies why an attempt ended in TxStatusError.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindRejected   ErrorKind = "signing_rejected"
	ErrorKindRevert     ErrorKind = "revert"
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindCanceled   ErrorKind = "canceled"
	ErrorKindUnknown    ErrorKind = "unknown"
)

// TxState is a snapshot of one transaction attempt.
type TxState struct {
	Status    TxStatus    `json:"status"`
	TxHash    common.Hash `json:"txHash"`
	Error     string      `json:"error,omitempty"`
	Kind      ErrorKind   `json:"kind,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
