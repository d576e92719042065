package mimir

import (
	"fmt"
	"strings"
	"time"
)

type TxType uint8

const (
	TxPlain TxType = iota
	TxMultisig
	TxProxy
	TxAnnounce
)

var txTypeNames = []string{"plain", "multisig", "proxy", "announce"}

func (t TxType) String() string {
	if int(t) < len(txTypeNames) {
		return txTypeNames[t]
	}

	return "plain"
}

func (t TxType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TxType) UnmarshalText(b []byte) error {
	v, err := ParseTxType(string(b))
	if err != nil {
		return err
	}

	*t = v
	return nil
}

func ParseTxType(s string) (TxType, error) {
	for i, name := range txTypeNames {
		if strings.EqualFold(name, s) {
			return TxType(i), nil
		}
	}

	if s == "" {
		return TxPlain, nil
	}

	return TxPlain, fmt.Errorf("unknown transaction type %q", s)
}

// TxStatus is ordered: every status below TxSuccess is pending, every
// other status is terminal.
type TxStatus uint8

const (
	TxInitialized TxStatus = iota
	TxPending
	TxSuccess
	TxFailed
	TxMemberChanged
	TxCancelled
	TxAnnounceRemoved
	TxAnnounceReject
)

var txStatusNames = []string{
	"initialized",
	"pending",
	"success",
	"failed",
	"member_changed",
	"cancelled",
	"announce_removed",
	"announce_reject",
}

func (s TxStatus) String() string {
	if int(s) < len(txStatusNames) {
		return txStatusNames[s]
	}

	return "unknown"
}

func (s TxStatus) IsPending() bool {
	return s < TxSuccess
}

func (s TxStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TxStatus) UnmarshalText(b []byte) error {
	for i, name := range txStatusNames {
		if strings.EqualFold(name, string(b)) {
			*s = TxStatus(i)
			return nil
		}
	}

	return fmt.Errorf("unknown transaction status %q", b)
}

// Transaction is a pending or historical extrinsic of an account.
type Transaction struct {
	ID        int64     `json:"id"`
	Network   string    `json:"network"`
	Address   Address   `json:"address"`
	Type      TxType    `json:"type"`
	Status    TxStatus  `json:"status"`
	Sender    Address   `json:"sender,omitempty"`
	Call      *Call     `json:"call,omitempty"`
	CallHash  string    `json:"call_hash,omitempty"`
	Height    *uint32   `json:"height,omitempty"`
	Index     *uint32   `json:"index,omitempty"`
	Threshold uint16    `json:"threshold,omitempty"`
	Members   []Address `json:"members,omitempty"`
	Approvals []Address `json:"approvals,omitempty"`
	// Delay is the announcement delay in blocks.
	Delay     uint32         `json:"delay,omitempty"`
	Children  []*Transaction `json:"children,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type TxKey struct {
	Network string
	ID      int64
}

func (tx *Transaction) Key() TxKey {
	return TxKey{Network: tx.Network, ID: tx.ID}
}

// Advance moves tx to status. Terminal transactions never change and a
// status never moves backwards.
func (tx *Transaction) Advance(status TxStatus, at time.Time) error {
	if !tx.Status.IsPending() {
		if status == tx.Status {
			return nil
		}

		return fmt.Errorf("%w: %s", ErrTerminalStatus, tx.Status)
	}

	if status < tx.Status {
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, tx.Status, status)
	}

	tx.Status = status
	tx.UpdatedAt = maxDate(tx.UpdatedAt, at)
	return nil
}

// Approve records a member approval on a pending multisig transaction.
func (tx *Transaction) Approve(addr Address, at time.Time) error {
	if !tx.Status.IsPending() {
		return fmt.Errorf("%w: %s", ErrTerminalStatus, tx.Status)
	}

	if containsAddress(tx.Approvals, addr) {
		return nil
	}

	tx.Approvals = append(tx.Approvals, addr)
	tx.UpdatedAt = maxDate(tx.UpdatedAt, at)
	return nil
}

// Progress tracks the approvals of a multisig transaction.
func (tx *Transaction) Progress() *Progress {
	return Track(&MultisigInfo{
		Members:   tx.Members,
		Threshold: tx.Threshold,
	}, tx.CallHash, tx.Approvals)
}

// supersedes reports whether tx should replace other for the same key.
func (tx *Transaction) supersedes(other *Transaction) bool {
	if tx.Status != other.Status {
		return tx.Status > other.Status
	}

	if len(tx.Approvals) != len(other.Approvals) {
		return len(tx.Approvals) > len(other.Approvals)
	}

	return tx.UpdatedAt.After(other.UpdatedAt)
}

func (tx *Transaction) matches(text string) bool {
	if text == "" {
		return true
	}

	text = strings.ToLower(text)
	fields := []string{tx.CallHash, tx.Type.String(), tx.Status.String()}
	if tx.Call != nil {
		fields = append(fields, tx.Call.Name())
	}

	if !tx.Address.IsZero() {
		fields = append(fields, tx.Address.String())
	}

	if !tx.Sender.IsZero() {
		fields = append(fields, tx.Sender.String())
	}

	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), text) {
			return true
		}
	}

	return false
}
