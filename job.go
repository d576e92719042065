package mimir

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"
)

// Job keeps an account looked up through the api in sync until it expires.
type Job struct {
	CreatedAt time.Time `json:"created_at"`
	Network   string    `json:"network"`
	Address   Address   `json:"address"`
}

func (j *Job) Scope() Scope {
	return Scope{Network: j.Network, Address: j.Address}
}

func (s *Server) HandlePendingJobs(ctx context.Context) error {
	for {
		_ = s.handlePendingJobs(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.JobInterval):
		}
	}
}

func (s *Server) handlePendingJobs(ctx context.Context) error {
	jobs, err := ListJobs(s.db)
	if err != nil {
		slog.Error("list jobs failed", slog.Any("err", err))
		return err
	}

	var g errgroup.Group
	g.SetLimit(4)

	for _, job := range jobs {
		g.Go(func() error {
			_ = s.handleJob(ctx, job)
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) handleJob(ctx context.Context, job *Job) error {
	log := slog.With(
		slog.String("network", job.Network),
		slog.String("address", job.Address.String()),
	)

	graph, err := s.builder.Build(ctx, job.Network, job.Address)
	if err != nil {
		log.Error("build graph failed", slog.Any("err", err))
		return err
	}

	if err := SaveGraph(s.db, graph); err != nil {
		log.Error("save graph failed", slog.Any("err", err))
		return err
	}

	for _, scope := range ScopesOf(job.Scope(), graph) {
		if err := syncTransactions(ctx, s.db, s.lister, scope); err != nil {
			return err
		}
	}

	return nil
}

// syncTransactions copies the transactions of scope updated after the saved
// offset into the store.
func syncTransactions(ctx context.Context, db *badger.DB, lister TransactionLister, scope Scope) error {
	txn := db.NewTransaction(true)
	defer txn.Discard()

	log := slog.With(slog.String("scope", scope.String()))

	offset, err := getOffset(txn, scope)
	if err != nil {
		log.Error("get offset failed", slog.Any("err", err))
		return err
	}

	log.Info("handle sync job", slog.Time("offset", offset))

	var (
		cursor string
		latest = offset
	)

	for {
		page, err := lister.ListTransactions(ctx, scope.Network, scope.Address, TxQuery{
			Limit:  MaxTxLimit,
			Cursor: cursor,
		})

		if err != nil {
			log.Error("list transactions failed", slog.Any("err", err))
			return err
		}

		fresh := false
		for _, tx := range page.Transactions {
			if !tx.UpdatedAt.After(offset) && !tx.Status.IsPending() {
				continue
			}

			fresh = true
			latest = maxDate(latest, tx.UpdatedAt)

			if _, err := saveTransaction(txn, scope, tx); err != nil {
				log.Error("save transaction failed", slog.Any("err", err))
				return err
			}
		}

		if !fresh || !page.HasMore || page.NextCursor == "" {
			break
		}

		cursor = page.NextCursor
	}

	if err := saveOffset(txn, scope, latest); err != nil {
		log.Error("save offset failed", slog.Any("err", err))
		return err
	}

	log.Info("finish sync job", slog.Time("offset", latest))
	return txn.Commit()
}
