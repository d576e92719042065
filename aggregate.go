package mimir

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zyedidia/generic/mapset"
)

type StatusFilter uint8

const (
	FilterAll StatusFilter = iota
	FilterPending
	FilterHistory
)

func ParseStatusFilter(s string) (StatusFilter, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return FilterAll, nil
	case "pending":
		return FilterPending, nil
	case "history":
		return FilterHistory, nil
	default:
		return FilterAll, fmt.Errorf("unknown status filter %q", s)
	}
}

func (f StatusFilter) String() string {
	switch f {
	case FilterPending:
		return "pending"
	case FilterHistory:
		return "history"
	default:
		return "all"
	}
}

func (f StatusFilter) match(s TxStatus) bool {
	switch f {
	case FilterPending:
		return s.IsPending()
	case FilterHistory:
		return !s.IsPending()
	default:
		return true
	}
}

type Filter struct {
	Status StatusFilter
	Types  []TxType
	// Addresses limits the feed to transactions of, or sent by, these accounts.
	Addresses []Address
	Text      string
}

func (f Filter) match(tx *Transaction) bool {
	if !f.Status.match(tx.Status) {
		return false
	}

	if len(f.Types) > 0 {
		var ok bool
		for _, t := range f.Types {
			ok = ok || t == tx.Type
		}

		if !ok {
			return false
		}
	}

	if len(f.Addresses) > 0 && !containsAddress(f.Addresses, tx.Address) && !containsAddress(f.Addresses, tx.Sender) {
		return false
	}

	return tx.matches(f.Text)
}

// Source is the transaction list of one account on one network together
// with its fetch state.
type Source struct {
	Network      string
	Address      Address
	Transactions []*Transaction
	Fetched      bool
	Fetching     bool
	HasMore      bool
	NextCursor   string
	Err          error
}

func (s Source) Scope() Scope {
	return Scope{Network: s.Network, Address: s.Address}
}

type Group struct {
	Date         time.Time      `json:"date"`
	Label        string         `json:"label"`
	Transactions []*Transaction `json:"transactions"`
}

// Feed is the merged view over many sources.
type Feed struct {
	Groups []*Group `json:"groups"`
	Total  int      `json:"total"`
	// IsLoading is only set before any source delivered data.
	IsLoading bool `json:"is_loading"`
	// IsFetched is set once every source fetched its current page.
	IsFetched bool              `json:"is_fetched"`
	HasMore   bool              `json:"has_more"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type GroupOptions struct {
	Now      time.Time
	Location *time.Location
}

// Aggregate merges sources into date groups. Entries sharing a (network,
// id) key collapse into the one with the later status; the output order
// only depends on the entries, never on source order.
func Aggregate(sources []Source, filter Filter, opts GroupOptions) *Feed {
	if opts.Location == nil {
		opts.Location = time.Local
	}

	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	feed := &Feed{IsFetched: true}

	var (
		anyFetched  bool
		anyFetching bool
		merged      []*Transaction
		index       = map[TxKey]int{}
	)

	for _, src := range sources {
		anyFetched = anyFetched || src.Fetched
		anyFetching = anyFetching || src.Fetching
		feed.IsFetched = feed.IsFetched && src.Fetched
		feed.HasMore = feed.HasMore || src.HasMore || !src.Fetched

		if src.Err != nil {
			if feed.Errors == nil {
				feed.Errors = map[string]string{}
			}

			feed.Errors[src.Scope().String()] = src.Err.Error()
		}

		for _, tx := range src.Transactions {
			if tx == nil {
				continue
			}

			if tx.Network == "" {
				cp := *tx
				cp.Network = src.Network
				tx = &cp
			}

			if i, ok := index[tx.Key()]; ok {
				if tx.supersedes(merged[i]) {
					merged[i] = tx
				}

				continue
			}

			index[tx.Key()] = len(merged)
			merged = append(merged, tx)
		}
	}

	feed.IsLoading = !anyFetched && anyFetching

	txs := make([]*Transaction, 0, len(merged))
	for _, tx := range merged {
		if filter.match(tx) {
			txs = append(txs, tx)
		}
	}

	sortTransactions(txs)

	for _, tx := range txs {
		day := startOfDay(tx.CreatedAt.In(opts.Location))
		if n := len(feed.Groups); n == 0 || !feed.Groups[n-1].Date.Equal(day) {
			feed.Groups = append(feed.Groups, &Group{
				Date:  day,
				Label: dayLabel(day, opts.Now.In(opts.Location)),
			})
		}

		g := feed.Groups[len(feed.Groups)-1]
		g.Transactions = append(g.Transactions, tx)
	}

	feed.Total = len(txs)
	return feed
}

// sortTransactions orders by createdAt descending. Equal timestamps fall
// back to height, network and id so the order stays deterministic.
func sortTransactions(txs []*Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}

		if ha, hb := heightOf(a), heightOf(b); ha != hb {
			return ha > hb
		}

		if a.Network != b.Network {
			return a.Network < b.Network
		}

		return a.ID > b.ID
	})
}

// heightOf sorts unfinalized transactions ahead of finalized ones.
func heightOf(tx *Transaction) int64 {
	if tx.Height == nil {
		return 1 << 40
	}

	return int64(*tx.Height)
}

// Flatten returns the feed transactions in display order.
func (f *Feed) Flatten() []*Transaction {
	txs := make([]*Transaction, 0, f.Total)
	for _, g := range f.Groups {
		txs = append(txs, g.Transactions...)
	}

	return txs
}

// Networks lists the distinct networks present in the feed.
func (f *Feed) Networks() []string {
	set := mapset.New[string]()
	for _, g := range f.Groups {
		for _, tx := range g.Transactions {
			set.Put(tx.Network)
		}
	}

	var networks []string
	set.Each(func(n string) {
		networks = append(networks, n)
	})

	sort.Strings(networks)
	return networks
}
