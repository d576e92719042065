package mimir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	g "github.com/pandodao/generic"
	"github.com/spf13/cast"
)

var (
	graphPrefix   = []byte("g:")
	txPrefix      = []byte("t:")
	txIndexPrefix = []byte("x:")
	contactPrefix = []byte("c:")
	jobPrefix     = []byte("j:")
	offsetPrefix  = []byte("o:")
)

func getJSON(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}

		return false, err
	}

	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func saveGraph(txn *badger.Txn, graph *Graph) error {
	pk := buildIndexKey(graphPrefix, scopeID(graph.Network, graph.Root.Address))
	return txn.Set(pk, g.Must(json.Marshal(graph)))
}

// findGraph returns the last saved graph snapshot of the scope, or nil.
func findGraph(txn *badger.Txn, network string, addr Address) (*Graph, error) {
	var graph Graph
	ok, err := getJSON(txn, buildIndexKey(graphPrefix, scopeID(network, addr)), &graph)
	if err != nil || !ok {
		return nil, err
	}

	return &graph, nil
}

func FindGraph(db *badger.DB, network string, addr Address) (*Graph, error) {
	txn := db.NewTransaction(false)
	defer txn.Discard()

	return findGraph(txn, network, addr)
}

func SaveGraph(db *badger.DB, graph *Graph) error {
	return db.Update(func(txn *badger.Txn) error {
		return saveGraph(txn, graph)
	})
}

func txKey(sid uuid.UUID, tx *Transaction) []byte {
	return buildIndexKey(txPrefix, sid, tx.CreatedAt.UnixNano(), tx.ID)
}

// saveTransaction stores tx under its scope. An already stored version that
// supersedes tx is kept.
func saveTransaction(txn *badger.Txn, scope Scope, tx *Transaction) (bool, error) {
	sid := scopeID(scope.Network, scope.Address)
	idx := buildIndexKey(txIndexPrefix, sid, tx.ID)

	var pk []byte
	if item, err := txn.Get(idx); err == nil {
		if pk, err = item.ValueCopy(nil); err != nil {
			return false, err
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return false, err
	}

	if pk != nil {
		var stored Transaction
		ok, err := getJSON(txn, pk, &stored)
		if err != nil {
			return false, err
		}

		if ok && stored.supersedes(tx) {
			return false, nil
		}

		if err := txn.Delete(pk); err != nil {
			return false, err
		}
	}

	pk = txKey(sid, tx)
	if err := txn.Set(pk, g.Must(json.Marshal(tx))); err != nil {
		return false, err
	}

	return true, txn.Set(idx, pk)
}

type txCursor struct {
	CreatedAt int64
	ID        int64
}

func (c txCursor) String() string {
	return fmt.Sprintf("%d.%d", c.CreatedAt, c.ID)
}

func parseTxCursor(s string) (txCursor, error) {
	var c txCursor
	if s == "" {
		return c, nil
	}

	at, id, ok := strings.Cut(s, ".")
	if !ok {
		return c, fmt.Errorf("%w %q", ErrInvalidCursor, s)
	}

	var err error
	if c.CreatedAt, err = cast.ToInt64E(at); err != nil {
		return c, fmt.Errorf("%w %q: %v", ErrInvalidCursor, s, err)
	}

	if c.ID, err = cast.ToInt64E(id); err != nil {
		return c, fmt.Errorf("%w %q: %v", ErrInvalidCursor, s, err)
	}

	return c, nil
}

// listTransactions lists the transactions of scope newest first, starting
// after cursor.
func listTransactions(txn *badger.Txn, scope Scope, cursor txCursor, status StatusFilter, limit int) ([]*Transaction, error) {
	prefix := buildIndexKey(txPrefix, scopeID(scope.Network, scope.Address))

	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = limit
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	var start []byte
	if cursor == (txCursor{}) {
		start = append(append([]byte{}, prefix...), 0xff)
	} else {
		start = buildIndexKey(prefix, cursor.CreatedAt, cursor.ID)
	}

	var txs []*Transaction
	for it.Seek(start); it.ValidForPrefix(prefix) && len(txs) < limit; it.Next() {
		item := it.Item()
		if cursor != (txCursor{}) && string(item.Key()) == string(start) {
			continue
		}

		var tx Transaction
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tx)
		}); err != nil {
			return nil, err
		}

		if !status.match(tx.Status) {
			continue
		}

		txs = append(txs, &tx)
	}

	return txs, nil
}

func getOffset(txn *badger.Txn, scope Scope) (time.Time, error) {
	var nano int64
	ok, err := getJSON(txn, buildIndexKey(offsetPrefix, scopeID(scope.Network, scope.Address)), &nano)
	if err != nil || !ok {
		return time.Time{}, err
	}

	return time.Unix(0, nano), nil
}

func saveOffset(txn *badger.Txn, scope Scope, offset time.Time) error {
	pk := buildIndexKey(offsetPrefix, scopeID(scope.Network, scope.Address))
	return txn.Set(pk, g.Must(json.Marshal(offset.UnixNano())))
}

// Store serves transactions synced into badger.
type Store struct {
	db *badger.DB
}

func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ListTransactions(_ context.Context, network string, addr Address, q TxQuery) (*TxPage, error) {
	cursor, err := parseTxCursor(q.Cursor)
	if err != nil {
		return nil, err
	}

	limit := normalizeLimit(q.Limit)

	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	scope := Scope{Network: network, Address: addr}
	txs, err := listTransactions(txn, scope, cursor, q.Status, limit+1)
	if err != nil {
		return nil, err
	}

	page := &TxPage{}
	if len(txs) > limit {
		txs = txs[:limit]
		page.HasMore = true
	}

	if n := len(txs); n > 0 && page.HasMore {
		last := txs[n-1]
		page.NextCursor = txCursor{CreatedAt: last.CreatedAt.UnixNano(), ID: last.ID}.String()
	}

	page.Transactions = txs
	return page, nil
}

func (s *Store) SaveTransactions(scope Scope, txs []*Transaction) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, tx := range txs {
			if _, err := saveTransaction(txn, scope, tx); err != nil {
				return err
			}
		}

		return nil
	})
}

func saveJob(txn *badger.Txn, job *Job, ttl time.Duration) error {
	pk := buildIndexKey(jobPrefix, scopeID(job.Network, job.Address))

	b, err := json.Marshal(job)
	if err != nil {
		panic(err)
	}

	e := badger.NewEntry(pk, b).WithTTL(ttl)
	return txn.SetEntry(e)
}

func SaveJob(db *badger.DB, job *Job, ttl time.Duration) error {
	return db.Update(func(txn *badger.Txn) error {
		return saveJob(txn, job, ttl)
	})
}

func listJobs(txn *badger.Txn) ([]*Job, error) {
	var jobs []*Job

	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 10
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(jobPrefix); it.ValidForPrefix(jobPrefix); it.Next() {
		item := it.Item()

		var job Job
		err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})

		if err != nil {
			return nil, err
		}

		jobs = append(jobs, &job)
	}

	return jobs, nil
}

func ListJobs(db *badger.DB) ([]*Job, error) {
	txn := db.NewTransaction(false)
	defer txn.Discard()

	return listJobs(txn)
}

func saveContact(txn *badger.Txn, c *Contact) error {
	pk := buildIndexKey(contactPrefix, c.UserID, c.ID)
	return txn.Set(pk, g.Must(json.Marshal(c)))
}

func deleteContact(txn *badger.Txn, userID, id uuid.UUID) error {
	return txn.Delete(buildIndexKey(contactPrefix, userID, id))
}

func findContact(txn *badger.Txn, userID, id uuid.UUID) (*Contact, error) {
	var c Contact
	ok, err := getJSON(txn, buildIndexKey(contactPrefix, userID, id), &c)
	if err != nil || !ok {
		return nil, err
	}

	return &c, nil
}

func listContacts(txn *badger.Txn, userID uuid.UUID) ([]*Contact, error) {
	prefix := buildIndexKey(contactPrefix, userID)

	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var contacts []*Contact
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var c Contact
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &c)
		}); err != nil {
			return nil, err
		}

		contacts = append(contacts, &c)
	}

	return contacts, nil
}
