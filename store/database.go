// Package store persists a history of submitted ladders in Postgres.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	"github.com/kestrel-mev/kestrel/metrics"
	"github.com/kestrel-mev/kestrel/mevshare"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type DBLadderSubmission struct {
	TargetTx   []byte    `db:"target_tx"`
	FirstBlock int64     `db:"first_block"`
	LastBlock  int64     `db:"last_block"`
	BundleNum  int       `db:"bundle_num"`
	Body       []byte    `db:"body"`
	InsertedAt time.Time `db:"inserted_at"`
}

var insertLadderQuery = `
INSERT INTO ladder_submission (target_tx, first_block, last_block, bundle_num, body, inserted_at)
VALUES (:target_tx, :first_block, :last_block, :bundle_num, :body, :inserted_at)`

type DBBackend struct {
	db *sqlx.DB
}

func NewDBBackend(postgresDSN string) (*DBBackend, error) {
	db, err := sqlx.Connect("postgres", postgresDSN)
	if err != nil {
		return nil, err
	}
	return &DBBackend{db: db}, nil
}

func (b *DBBackend) InsertLadder(ctx context.Context, targetTx common.Hash, bundles []*mevshare.SendMevBundleArgs) error {
	body, err := json.Marshal(bundles)
	if err != nil {
		return err
	}
	row := DBLadderSubmission{
		TargetTx:   targetTx.Bytes(),
		FirstBlock: int64(bundles[0].Inclusion.BlockNumber),
		LastBlock:  int64(bundles[0].Inclusion.MaxBlock),
		BundleNum:  len(bundles),
		Body:       body,
		InsertedAt: time.Now().UTC(),
	}
	_, err = b.db.NamedExecContext(ctx, insertLadderQuery, row)
	return err
}

func (b *DBBackend) Close() error {
	return b.db.Close()
}

// Executor records every submit-bundles action. Insert failures are logged
// and counted; history is best effort and never blocks submission.
type Executor struct {
	log     *zap.Logger
	backend *DBBackend
}

func NewExecutor(log *zap.Logger, backend *DBBackend) *Executor {
	return &Executor{log: log.Named("store"), backend: backend}
}

func (e *Executor) Name() string { return "postgres-store" }

func (e *Executor) Execute(ctx context.Context, bundles []*mevshare.SendMevBundleArgs) error {
	if len(bundles) == 0 {
		return nil
	}
	var targetTx common.Hash
	if len(bundles[0].Body) > 0 && bundles[0].Body[0].Hash != nil {
		targetTx = *bundles[0].Body[0].Hash
	}
	if err := e.backend.InsertLadder(ctx, targetTx, bundles); err != nil {
		metrics.IncStoreError()
		e.log.Warn("Failed to store ladder submission", zap.Error(err))
	}
	return nil
}
