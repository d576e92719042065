package mimir

import (
	"errors"
	"testing"
	"time"
)

var feedNow = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

func testTx(network string, id int64, status TxStatus, created time.Time) *Transaction {
	return &Transaction{
		ID:        id,
		Network:   network,
		Address:   testAddress(1),
		Type:      TxMultisig,
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func feedIDs(f *Feed) []int64 {
	var ids []int64
	for _, tx := range f.Flatten() {
		ids = append(ids, tx.ID)
	}

	return ids
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func TestAggregateGroupsAndOrder(t *testing.T) {
	sources := []Source{
		{
			Network: "polkadot",
			Address: testAddress(1),
			Fetched: true,
			Transactions: []*Transaction{
				testTx("polkadot", 1, TxSuccess, feedNow.Add(-48*time.Hour)),
				testTx("polkadot", 2, TxPending, feedNow.Add(-time.Hour)),
			},
		},
		{
			Network: "kusama",
			Address: testAddress(1),
			Fetched: true,
			Transactions: []*Transaction{
				testTx("kusama", 3, TxSuccess, feedNow.Add(-24*time.Hour)),
				testTx("kusama", 4, TxPending, feedNow.Add(-2*time.Hour)),
			},
		},
	}

	feed := Aggregate(sources, Filter{}, GroupOptions{Now: feedNow, Location: time.UTC})

	if got := feedIDs(feed); !equalIDs(got, []int64{2, 4, 3, 1}) {
		t.Errorf("order = %v", got)
	}

	if len(feed.Groups) != 3 {
		t.Fatalf("%d groups", len(feed.Groups))
	}

	for i, label := range []string{"Today", "Yesterday", "2024-03-08"} {
		if feed.Groups[i].Label != label {
			t.Errorf("group %d label = %s, want %s", i, feed.Groups[i].Label, label)
		}
	}

	if !feed.IsFetched || feed.IsLoading || feed.Total != 4 {
		t.Errorf("feed = %+v", feed)
	}

	if networks := feed.Networks(); len(networks) != 2 || networks[0] != "kusama" {
		t.Errorf("networks = %v", networks)
	}
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	at := feedNow.Add(-time.Hour)
	h1, h2 := uint32(10), uint32(20)

	a := testTx("polkadot", 1, TxPending, at)
	a.Height = &h1
	b := testTx("polkadot", 2, TxPending, at)
	b.Height = &h2
	c := testTx("kusama", 3, TxPending, at)
	d := testTx("astar", 4, TxPending, at)

	s1 := Source{Network: "polkadot", Fetched: true, Transactions: []*Transaction{a, b}}
	s2 := Source{Network: "kusama", Fetched: true, Transactions: []*Transaction{c}}
	s3 := Source{Network: "astar", Fetched: true, Transactions: []*Transaction{d}}

	opts := GroupOptions{Now: feedNow, Location: time.UTC}
	first := feedIDs(Aggregate([]Source{s1, s2, s3}, Filter{}, opts))
	second := feedIDs(Aggregate([]Source{s3, s2, s1}, Filter{}, opts))

	if !equalIDs(first, second) {
		t.Errorf("%v != %v", first, second)
	}

	// unfinalized first, then by height, network and id
	if !equalIDs(first, []int64{4, 3, 2, 1}) {
		t.Errorf("order = %v", first)
	}
}

func TestAggregateDedup(t *testing.T) {
	at := feedNow.Add(-time.Hour)
	pending := testTx("polkadot", 7, TxPending, at)
	done := testTx("polkadot", 7, TxSuccess, at)
	otherChain := testTx("kusama", 7, TxPending, at)

	for _, sources := range [][]Source{
		{{Network: "polkadot", Transactions: []*Transaction{pending}}, {Network: "polkadot", Transactions: []*Transaction{done, otherChain}}},
		{{Network: "polkadot", Transactions: []*Transaction{done, otherChain}}, {Network: "polkadot", Transactions: []*Transaction{pending}}},
	} {
		feed := Aggregate(sources, Filter{}, GroupOptions{Now: feedNow})
		txs := feed.Flatten()
		if len(txs) != 2 {
			t.Fatalf("%d transactions", len(txs))
		}

		for _, tx := range txs {
			if tx.Network == "polkadot" && tx.Status != TxSuccess {
				t.Error("the later status must win")
			}
		}
	}
}

func TestAggregateFilter(t *testing.T) {
	at := feedNow.Add(-time.Hour)
	proxy := testTx("polkadot", 1, TxPending, at)
	proxy.Type = TxProxy
	proxy.Sender = testAddress(5)
	done := testTx("polkadot", 2, TxFailed, at)
	done.CallHash = "0xfeed"

	sources := []Source{{Network: "polkadot", Fetched: true, Transactions: []*Transaction{proxy, done}}}
	opts := GroupOptions{Now: feedNow}

	for name, tc := range map[string]struct {
		filter Filter
		want   []int64
	}{
		"all":     {Filter{}, []int64{2, 1}},
		"pending": {Filter{Status: FilterPending}, []int64{1}},
		"history": {Filter{Status: FilterHistory}, []int64{2}},
		"type":    {Filter{Types: []TxType{TxProxy}}, []int64{1}},
		"sender":  {Filter{Addresses: []Address{testAddress(5)}}, []int64{1}},
		"text":    {Filter{Text: "FEED"}, []int64{2}},
	} {
		if got := feedIDs(Aggregate(sources, tc.filter, opts)); !equalIDs(got, tc.want) {
			t.Errorf("%s: got %v, want %v", name, got, tc.want)
		}
	}
}

func TestAggregateLoadingState(t *testing.T) {
	loading := Aggregate([]Source{
		{Network: "polkadot", Fetching: true},
		{Network: "kusama", Fetching: true},
	}, Filter{}, GroupOptions{})

	if !loading.IsLoading || loading.IsFetched {
		t.Errorf("feed = %+v", loading)
	}

	partial := Aggregate([]Source{
		{Network: "polkadot", Fetched: true, Transactions: []*Transaction{testTx("polkadot", 1, TxPending, feedNow)}},
		{Network: "kusama", Fetching: true},
	}, Filter{}, GroupOptions{})

	if partial.IsLoading || partial.IsFetched || partial.Total != 1 {
		t.Errorf("feed = %+v", partial)
	}

	failed := Aggregate([]Source{
		{Network: "polkadot", Address: testAddress(1), Fetched: true, Err: errors.New("boom")},
	}, Filter{}, GroupOptions{})

	if len(failed.Errors) != 1 || !failed.IsFetched || failed.HasMore {
		t.Errorf("feed = %+v", failed)
	}
}

func TestAggregateFillsNetwork(t *testing.T) {
	tx := testTx("", 1, TxPending, feedNow)
	feed := Aggregate([]Source{{Network: "astar", Fetched: true, Transactions: []*Transaction{tx}}}, Filter{}, GroupOptions{})

	if got := feed.Flatten()[0].Network; got != "astar" {
		t.Errorf("network = %q", got)
	}

	if tx.Network != "" {
		t.Error("input transaction must not be modified")
	}
}
