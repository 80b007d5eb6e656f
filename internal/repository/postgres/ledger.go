package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vinicioflores/GreenCarrot/internal/apperr"
	"github.com/vinicioflores/GreenCarrot/internal/entity"
	"github.com/vinicioflores/GreenCarrot/internal/repository"
)

var procedureName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidProcedureName reports whether name is a plain or schema-qualified
// identifier that can be embedded in a CALL statement.
func ValidProcedureName(name string) bool {
	return procedureName.MatchString(name)
}

// Ledger calls a stored procedure that books the financial side of a
// checkout: one input (the checkout id) and one output (the ledger entry).
type Ledger struct {
	db      *gorm.DB
	call    string
	breaker *gobreaker.CircuitBreaker
}

var _ repository.Ledger = (*Ledger)(nil)

// LedgerOptions tunes the circuit breaker around the procedure call.
type LedgerOptions struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// CoolDown is how long the breaker stays open.
	CoolDown time.Duration
}

// NewLedger opens a lazy gorm session; the ledger being down at startup is
// not an error because every call is best-effort.
func NewLedger(dsn, procedure string, opts LedgerOptions) (*Ledger, error) {
	db, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Error),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return NewLedgerFromDB(db, procedure, opts)
}

// NewLedgerFromDB wraps an existing gorm session.
func NewLedgerFromDB(db *gorm.DB, procedure string, opts LedgerOptions) (*Ledger, error) {
	if !ValidProcedureName(procedure) {
		return nil, fmt.Errorf("invalid ledger procedure name %q", procedure)
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.CoolDown <= 0 {
		opts.CoolDown = 30 * time.Second
	}

	parts := strings.Split(procedure, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}

	return &Ledger{
		db:   db,
		call: "CALL " + strings.Join(parts, ".") + "(?, NULL)",
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "ledger:" + procedure,
			Timeout: opts.CoolDown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= opts.FailureThreshold
			},
		}),
	}, nil
}

// RecordCheckout returns the procedure's output parameter. Every failure,
// including an open breaker, is an apperr.ErrSideEffect.
func (l *Ledger) RecordCheckout(ctx context.Context, checkout entity.CheckoutFact) (string, error) {
	out, err := l.breaker.Execute(func() (interface{}, error) {
		var ref sql.NullString
		row := l.db.WithContext(ctx).Raw(l.call, checkout.ID.String()).Row()
		if err := row.Scan(&ref); err != nil {
			return nil, err
		}
		return ref.String, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", apperr.SideEffect("ledger call", fmt.Errorf("ledger breaker %s: %w", l.breaker.State(), err))
		}
		return "", apperr.SideEffect("ledger call", err)
	}
	return out.(string), nil
}

// Ping checks that the ledger answers.
func (l *Ledger) Ping(ctx context.Context) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the ledger session.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
