package mimir

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

func openTestDB(t *testing.T) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func TestIndexKey(t *testing.T) {
	id := uuid.New()
	key := buildIndexKey(txPrefix, id, int64(42))

	var (
		gotID uuid.UUID
		n     int64
	)

	if err := decodeIndexKey(key, txPrefix, &gotID, &n); err != nil {
		t.Fatal(err)
	}

	if gotID != id || n != 42 {
		t.Errorf("decoded %s %d", gotID, n)
	}

	prefix := buildIndexKey(txPrefix, id)
	a := buildIndexKey(prefix, int64(1))
	_ = buildIndexKey(prefix, int64(2))

	if err := decodeIndexKey(a, prefix, &n); err != nil || n != 1 {
		t.Errorf("key built on a shared prefix changed: %d, %v", n, err)
	}
}

func TestGraphSnapshot(t *testing.T) {
	db := openTestDB(t)
	chain := newFakeChain()
	root := chain.addMultisig(2, testAddress(1), testAddress(2))

	g, err := NewGraphBuilder(ChainSource{Chain: chain}).Build(context.Background(), "polkadot", root)
	if err != nil {
		t.Fatal(err)
	}

	if err := SaveGraph(db, g); err != nil {
		t.Fatal(err)
	}

	got, err := FindGraph(db, "polkadot", root)
	if err != nil {
		t.Fatal(err)
	}

	if got == nil || got.Root.Type != AccountMultisig || len(got.Signers()) != 2 {
		t.Fatalf("graph = %+v", got)
	}

	if other, err := FindGraph(db, "kusama", root); err != nil || other != nil {
		t.Errorf("other network: %v, %v", other, err)
	}
}

func TestStoreTransactions(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	scope := Scope{Network: "polkadot", Address: testAddress(1)}

	var txs []*Transaction
	for i := 1; i <= 5; i++ {
		status := TxSuccess
		if i%2 == 0 {
			status = TxPending
		}

		txs = append(txs, testTx("polkadot", int64(i), status, feedNow.Add(time.Duration(i)*time.Minute)))
	}

	if err := store.SaveTransactions(scope, txs); err != nil {
		t.Fatal(err)
	}

	page, err := store.ListTransactions(context.Background(), "polkadot", scope.Address, TxQuery{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}

	if len(page.Transactions) != 2 || page.Transactions[0].ID != 5 || !page.HasMore {
		t.Fatalf("page = %+v", page)
	}

	rest, err := store.ListTransactions(context.Background(), "polkadot", scope.Address, TxQuery{Limit: 10, Cursor: page.NextCursor})
	if err != nil {
		t.Fatal(err)
	}

	if len(rest.Transactions) != 3 || rest.Transactions[0].ID != 3 || rest.HasMore {
		t.Errorf("rest = %+v", rest)
	}

	pending, err := store.ListTransactions(context.Background(), "polkadot", scope.Address, TxQuery{Status: FilterPending})
	if err != nil {
		t.Fatal(err)
	}

	if len(pending.Transactions) != 2 {
		t.Errorf("pending = %d", len(pending.Transactions))
	}

	if _, err := store.ListTransactions(context.Background(), "polkadot", scope.Address, TxQuery{Cursor: "bad"}); err == nil {
		t.Error("bad cursor must fail")
	}
}

func TestSaveTransactionKeepsLaterStatus(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	scope := Scope{Network: "polkadot", Address: testAddress(1)}

	done := testTx("polkadot", 1, TxSuccess, feedNow)
	stale := testTx("polkadot", 1, TxPending, feedNow)

	if err := store.SaveTransactions(scope, []*Transaction{done}); err != nil {
		t.Fatal(err)
	}

	if err := store.SaveTransactions(scope, []*Transaction{stale}); err != nil {
		t.Fatal(err)
	}

	page, err := store.ListTransactions(context.Background(), "polkadot", scope.Address, TxQuery{})
	if err != nil {
		t.Fatal(err)
	}

	if len(page.Transactions) != 1 || page.Transactions[0].Status != TxSuccess {
		t.Errorf("page = %+v", page.Transactions)
	}
}

func TestJobs(t *testing.T) {
	db := openTestDB(t)
	job := &Job{CreatedAt: time.Now(), Network: "polkadot", Address: testAddress(1)}

	if err := SaveJob(db, job, time.Minute); err != nil {
		t.Fatal(err)
	}

	// saving again only extends the ttl
	if err := SaveJob(db, job, time.Minute); err != nil {
		t.Fatal(err)
	}

	jobs, err := ListJobs(db)
	if err != nil {
		t.Fatal(err)
	}

	if len(jobs) != 1 || jobs[0].Address != job.Address {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestContacts(t *testing.T) {
	db := openTestDB(t)
	alice, bob := NewUser("alice"), NewUser("bob")

	c, err := NewContact(alice, " treasury ", "polkadot", aliceGeneric)
	if err != nil {
		t.Fatal(err)
	}

	if c.Name != "treasury" {
		t.Errorf("name = %q", c.Name)
	}

	if err := db.Update(func(txn *badger.Txn) error {
		return saveContact(txn, c)
	}); err != nil {
		t.Fatal(err)
	}

	_ = db.View(func(txn *badger.Txn) error {
		if list, _ := listContacts(txn, alice.ID); len(list) != 1 || list[0].Address != MustAddress(aliceHex) {
			t.Errorf("alice contacts = %+v", list)
		}

		if list, _ := listContacts(txn, bob.ID); len(list) != 0 {
			t.Errorf("bob contacts = %+v", list)
		}

		return nil
	})

	if err := db.Update(func(txn *badger.Txn) error {
		return deleteContact(txn, alice.ID, c.ID)
	}); err != nil {
		t.Fatal(err)
	}

	_ = db.View(func(txn *badger.Txn) error {
		if found, _ := findContact(txn, alice.ID, c.ID); found != nil {
			t.Error("contact not deleted")
		}

		return nil
	})

	if _, err := NewContact(alice, "", "polkadot", aliceGeneric); err == nil {
		t.Error("empty name must fail")
	}

	if _, err := NewContact(alice, "x", "polkadot", "nope"); err == nil {
		t.Error("bad address must fail")
	}
}

func TestSyncTransactions(t *testing.T) {
	db := openTestDB(t)
	backend := newFakeBackend()
	scope := Scope{Network: "polkadot", Address: testAddress(1)}
	seedTransactions(backend, scope, 3)

	if err := syncTransactions(context.Background(), db, backend, scope); err != nil {
		t.Fatal(err)
	}

	page, err := NewStore(db).ListTransactions(context.Background(), "polkadot", scope.Address, TxQuery{})
	if err != nil {
		t.Fatal(err)
	}

	if len(page.Transactions) != 3 {
		t.Fatalf("synced %d transactions", len(page.Transactions))
	}

	var offset time.Time
	_ = db.View(func(txn *badger.Txn) error {
		offset, err = getOffset(txn, scope)
		return err
	})

	if !offset.Equal(feedNow) {
		t.Errorf("offset = %v", offset)
	}
}
