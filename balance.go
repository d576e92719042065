package mimir

import (
	"github.com/shopspring/decimal"
)

type Balance struct {
	AssetID  string          `json:"asset_id"`
	Symbol   string          `json:"symbol"`
	Decimals int32           `json:"decimals"`
	Free     decimal.Decimal `json:"free"`
	Reserved decimal.Decimal `json:"reserved"`
	Locked   decimal.Decimal `json:"locked"`
}

func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Reserved)
}

// Transferable is the free balance not held by locks.
func (b Balance) Transferable() decimal.Decimal {
	v := b.Free.Sub(b.Locked)
	if v.IsNegative() {
		return decimal.Zero
	}

	return v
}

// AccountDetails is the account metadata kept by the backend.
type AccountDetails struct {
	Address   Address     `json:"address"`
	Type      AccountType `json:"type"`
	Name      string      `json:"name,omitempty"`
	Members   []Address   `json:"members,omitempty"`
	Threshold uint16      `json:"threshold,omitempty"`

	// pure proxy creation
	Creator               Address `json:"creator,omitempty"`
	CreatedNetwork        string  `json:"created_network,omitempty"`
	CreatedHeight         uint32  `json:"created_height,omitempty"`
	CreatedExtrinsicIndex uint32  `json:"created_extrinsic_index,omitempty"`
	ProxyType             string  `json:"proxy_type,omitempty"`

	Balances []Balance `json:"balances,omitempty"`
}

func (d *AccountDetails) Multisig() (*MultisigInfo, error) {
	if d.Type != AccountMultisig {
		return nil, ErrNotMultisig
	}

	return NewMultisigInfo(d.Members, d.Threshold)
}

// SumBalances totals the balances of asset.
func SumBalances(balances []Balance, assetID string) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range balances {
		if b.AssetID == assetID {
			sum = sum.Add(b.Total())
		}
	}

	return sum
}
