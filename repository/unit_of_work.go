package repository

import (
	"context"
	"fmt"

	"digido/database"
	"digido/events"
	"digido/service"
	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the service.UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	userPrefsRepo    service.UserPrefsRepository
	runRepo          service.SummaryRunRepository
	outboxRepo       service.OutboxRepository
	summaryRepo      service.SummaryRepository
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	// Create repositories bound to the transaction
	u.userPrefsRepo = newUserPrefsRepositoryWithTx(tx)
	u.runRepo = newSummaryRunRepositoryWithTx(tx)
	u.outboxRepo = newOutboxRepositoryWithTx(tx)
	u.summaryRepo = newSummaryRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction and flushes pending events
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	u.tx = nil

	// Events only become visible once the state they describe is durable
	if u.transactionalBus != nil {
		u.transactionalBus.Flush(u.ctx)
	}
	return nil
}

// Rollback rolls back the transaction and discards pending events
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to roll back
	}

	err := u.tx.Rollback(u.ctx)
	u.tx = nil
	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// Publish stashes an event until the transaction commits
func (u *unitOfWork) Publish(event events.Event) {
	u.transactionalBus.Publish(event)
}

// UserPrefsRepository returns the user prefs repository for this unit of work
func (u *unitOfWork) UserPrefsRepository() service.UserPrefsRepository {
	if u.userPrefsRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.userPrefsRepo
}

// SummaryRunRepository returns the run repository for this unit of work
func (u *unitOfWork) SummaryRunRepository() service.SummaryRunRepository {
	if u.runRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.runRepo
}

// OutboxRepository returns the outbox repository for this unit of work
func (u *unitOfWork) OutboxRepository() service.OutboxRepository {
	if u.outboxRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.outboxRepo
}

// SummaryRepository returns the summary repository for this unit of work
func (u *unitOfWork) SummaryRepository() service.SummaryRepository {
	if u.summaryRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.summaryRepo
}
