package core

// Section Funds Dispatcher (component F): a thin mediator over the external
// cryptographic transfer engine. Grounded on an escrow Create/Release
// submit-and-await shape (submit a debit, learn the outcome later) and on
// retry-tuning knobs already present elsewhere in this codebase's
// replication configuration (base/cap/attempt-count), generalized into
// exponential backoff per spec §4.6.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TransferEngine is the external, already-signed debit/credit engine the
// dispatcher submits intents to. It is a narrow capability interface, not a
// concrete implementation — this package never validates signatures itself.
type TransferEngine interface {
	// Debit requests a signed transfer of amount from the section wallet
	// to account. It returns once the engine accepts or rejects the
	// intent, not once it settles; settlement itself happens out of band
	// through whatever transport the engine owns — outside this
	// package's concern.
	Debit(ctx context.Context, amount Token, account AccountID) error
}

// PayoutRequest is the duty payload asking the dispatcher to pay amount to
// account (emitted by the Reward Ledger, spec §4.5).
type PayoutRequest struct {
	Amount  Token
	Account AccountID
}

// PayoutFailed is surfaced after retries are exhausted (spec §4.6).
type PayoutFailed struct {
	Account AccountID
	Amount  Token
	Err     string
}

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 30 * time.Second
	maxAttempts = 10
)

// pendingDebit coalesces queued amounts for an account so at most one
// transfer per account is ever in flight (spec §4.6).
type pendingDebit struct {
	mu       sync.Mutex
	total    Token
	inFlight bool
}

// maxConcurrentPayouts bounds how many accounts' retry loops may run at
// once, independent of how many accounts the section currently tracks.
const maxConcurrentPayouts = 8

// SectionFundsDispatcher serializes outstanding debits per account and
// retries failures with exponential backoff. Retry loops run on a bounded
// worker pool (errgroup) so a slow/failing engine for one account never
// blocks payouts to the rest.
type SectionFundsDispatcher struct {
	engine TransferEngine
	logger *zap.SugaredLogger

	group    *errgroup.Group
	failures chan Duty

	mu      sync.Mutex
	pending map[AccountID]*pendingDebit
}

// NewSectionFundsDispatcher binds a dispatcher to its transfer engine. Read
// Failures() to learn about payouts whose retries were exhausted — the
// retry loop runs off the caller's goroutine and cannot return that duty
// synchronously.
func NewSectionFundsDispatcher(engine TransferEngine, lg *zap.Logger) *SectionFundsDispatcher {
	if lg == nil {
		lg = zap.NewNop()
	}
	group := &errgroup.Group{}
	group.SetLimit(maxConcurrentPayouts)
	return &SectionFundsDispatcher{
		engine:   engine,
		logger:   lg.Sugar(),
		group:    group,
		failures: make(chan Duty, maxConcurrentPayouts),
		pending:  make(map[AccountID]*pendingDebit),
	}
}

// Failures delivers a PayoutFailed SendDuty for every account whose
// retries were exhausted, for the event loop to fold in.
func (d *SectionFundsDispatcher) Failures() <-chan Duty { return d.failures }

// InitiateRewardPayout queues amount for account, combining it with any
// already-queued amount for the same account, and (if nothing is already
// in flight for that account) schedules a retrying debit on the bounded
// worker pool. It always returns nil: a failure surfaces later via
// Failures(), never synchronously (spec §4.6).
func (d *SectionFundsDispatcher) InitiateRewardPayout(ctx context.Context, amount Token, account AccountID) Duty {
	d.mu.Lock()
	pd, ok := d.pending[account]
	if !ok {
		pd = &pendingDebit{}
		d.pending[account] = pd
	}
	d.mu.Unlock()

	pd.mu.Lock()
	next, err := pd.total.Add(amount)
	if err != nil {
		pd.mu.Unlock()
		d.logger.Errorf("fundsdispatcher: coalesced amount overflow for %s: %v", account, err)
		return nil
	}
	pd.total = next
	if pd.inFlight {
		pd.mu.Unlock()
		d.logger.Debugf("fundsdispatcher: coalesced %d nanos into in-flight payout for %s", amount, account)
		return nil
	}
	pd.inFlight = true
	toSend := pd.total
	pd.total = 0
	pd.mu.Unlock()

	d.group.Go(func() error {
		d.drive(ctx, account, toSend, pd)
		return nil
	})
	return nil
}

// drive runs the engine call with exponential backoff and reports a
// PayoutFailed duty on Failures() if every attempt fails. It then pays out,
// the same way, whatever amount was coalesced for the account while this
// debit was in flight.
func (d *SectionFundsDispatcher) drive(ctx context.Context, account AccountID, amount Token, pd *pendingDebit) {
	defer func() {
		pd.mu.Lock()
		next := pd.total
		pd.total = 0
		pd.inFlight = next > 0
		pd.mu.Unlock()
		if next > 0 {
			d.drive(ctx, account, next, pd)
		}
	}()

	backoff := backoffBase
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := d.engine.Debit(ctx, amount, account); err != nil {
			lastErr = err
			d.logger.Warnf("fundsdispatcher: debit attempt %d/%d for %s failed: %v", attempt, maxAttempts, account, err)
			if attempt == maxAttempts {
				break
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = maxAttempts
			}
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
			continue
		}
		d.logger.Infof("fundsdispatcher: paid %d nanos to %s (attempt %d)", amount, account, attempt)
		return
	}
	d.failures <- SendDuty{Envelope: Envelope{
		ID:      uuid.New(),
		Payload: PayoutFailed{Account: account, Amount: amount, Err: fmt.Sprintf("%v", lastErr)},
	}}
}
