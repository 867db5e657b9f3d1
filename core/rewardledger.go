package core

// Reward Ledger (component E): the central state machine coordinating node
// churn with the Farming System. Grounded on an authority-set keeper shape
// — a single mutex guarding a map keyed by node identity, with
// deterministic state transitions and logrus transition logging — but with
// the ledger-backed key/value store replaced by a plain in-memory map,
// since spec §5 makes the Reward Ledger the sole owner of the node-account
// map (no aliasing, no external store).

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	logrus "github.com/sirupsen/logrus"
)

// AccountState tags a RewardAccount's lifecycle position (spec §3). Exactly
// these three transitions are legal: ∅→Active, ∅→AwaitingStart→Active,
// Active→AwaitingMove→∅ (P9).
type AccountState uint8

const (
	AwaitingStart AccountState = iota + 1
	ActiveAccount
	AwaitingMove
)

// RewardAccount is a tagged sum stored by value inside the ledger's map —
// never shared, never aliased (spec "Design Notes: Replacing deep object
// graphs for accounts").
type RewardAccount struct {
	State     AccountState
	AccountID AccountID
}

// RewardLedger owns the node-account map exclusively. No other component
// reads or writes it directly.
type RewardLedger struct {
	mu       sync.Mutex
	accounts map[NodeName]RewardAccount
	farming  *FarmingSystem
	logger   *logrus.Logger
}

// NewRewardLedger binds a ledger to the farming system it coordinates.
func NewRewardLedger(farming *FarmingSystem, lg *logrus.Logger) *RewardLedger {
	if lg == nil {
		lg = logrus.New()
	}
	return &RewardLedger{
		accounts: make(map[NodeName]RewardAccount),
		farming:  farming,
		logger:   lg,
	}
}

// AddNewAccount inserts Active(id) for node, and registers id with the
// farming system at zero work, if node is not already known.
// Duplicates are dropped, never overwritten (spec §4.5).
func (l *RewardLedger) AddNewAccount(id AccountID, node NodeName) Duties {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[node]; ok {
		l.logger.Debugf("rewardledger: AddNewAccount dropped, %s already known", node.Short())
		return nil
	}
	if err := l.farming.AddAccount(id, 0); err != nil {
		l.logger.Errorf("rewardledger: farming add_account failed for %s: %v", node.Short(), err)
		return nil
	}
	l.accounts[node] = RewardAccount{State: ActiveAccount, AccountID: id}
	l.logger.Infof("rewardledger: node %s active with account %s", node.Short(), id)
	return nil
}

// AddRelocatedAccount inserts new -> AwaitingStart and asks old's section to
// hand over the reward counter.
func (l *RewardLedger) AddRelocatedAccount(old, new NodeName, msgID uuid.UUID, oldSectionAddr string) Duties {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[new]; ok {
		l.logger.Debugf("rewardledger: AddRelocatedAccount dropped, %s already known", new.Short())
		return nil
	}
	l.accounts[new] = RewardAccount{State: AwaitingStart}
	l.logger.Infof("rewardledger: node %s relocating, awaiting claim from %s", new.Short(), old.Short())
	return Duties{Send(SectionDest, oldSectionAddr, msgID, ClaimRewardCounter{Old: old, New: new})}
}

// ClaimRewardCounter is the cross-section command asking this (the old)
// section to release node's counter.
type ClaimRewardCounter struct {
	Old NodeName
	New NodeName
}

// RewardCounterClaimed is the reply carrying the released counter.
type RewardCounterClaimed struct {
	New     NodeName
	ID      AccountID
	Counter RewardCounter
}

// HandleClaimRewardCounter processes a ClaimRewardCounter command received
// by the section that currently holds old's account.
func (l *RewardLedger) HandleClaimRewardCounter(old, new NodeName, msgID uuid.UUID, origin Origin) Duties {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[old]
	if !ok || acct.State != AwaitingMove {
		l.logger.Warnf("rewardledger: ClaimRewardCounter for %s invalid (not AwaitingMove)", old.Short())
		return Duties{Send(SectionDest, origin.Addr, msgID, CmdError{Kind: KindValidation, Message: ErrInvalidClaim.Error()})}
	}
	counter, err := l.farming.Claim(acct.AccountID)
	if err != nil {
		// Internal invariant violation: the account existed in
		// AwaitingMove but the farming system had no matching entry.
		l.logger.Errorf("rewardledger: claim invariant violated for %s: %v", old.Short(), err)
		return nil
	}
	delete(l.accounts, old)
	l.logger.Infof("rewardledger: %s claimed (work=%d reward=%d), handing to %s", old.Short(), counter.Work, counter.Reward, new.Short())
	return Duties{Send(SectionDest, origin.Addr, msgID, RewardCounterClaimed{New: new, ID: acct.AccountID, Counter: counter})}
}

// ReceiveClaimedRewards processes the reply to AddRelocatedAccount: bind
// the claimed counter's work into the farming system and activate the
// account. If counter.Reward > 0, ask the Funds Dispatcher to pay it out.
func (l *RewardLedger) ReceiveClaimedRewards(id AccountID, node NodeName, counter RewardCounter) Duties {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[node]
	if !ok || acct.State != AwaitingStart {
		// Per spec §9 this should not be fabricated; if it arrives the
		// protocol invariant was violated upstream. Log and discard.
		l.logger.Errorf("rewardledger: ReceiveClaimedRewards for %s in wrong state, discarding", node.Short())
		return nil
	}
	if err := l.farming.AddAccount(id, counter.Work); err != nil {
		l.logger.Errorf("rewardledger: farming add_account failed for %s: %v", node.Short(), err)
		return nil
	}
	l.accounts[node] = RewardAccount{State: ActiveAccount, AccountID: id}
	l.logger.Infof("rewardledger: node %s activated with claimed work=%d", node.Short(), counter.Work)

	if counter.Reward == 0 {
		return nil
	}
	return Duties{payoutDuty(counter.Reward, id)}
}

// AccumulateReward folds a write of numBytes into the farming system's
// reward accrual (spec §4.5 "AccumulateReward"); factor 2.0 per spec §6.
func (l *RewardLedger) AccumulateReward(data []byte, numBytes uint64) error {
	return l.farming.Reward(data, numBytes, 2.0)
}

// PrepareAccountMove transitions an Active account to AwaitingMove ahead of
// a node departure.
func (l *RewardLedger) PrepareAccountMove(node NodeName) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[node]
	if !ok || acct.State != ActiveAccount {
		return fmt.Errorf("rewardledger: %s is not an active account", node.Short())
	}
	l.accounts[node] = RewardAccount{State: AwaitingMove, AccountID: acct.AccountID}
	l.logger.Infof("rewardledger: node %s awaiting move", node.Short())
	return nil
}

// Lookup returns a copy of the current account for node, for tests and
// diagnostics.
func (l *RewardLedger) Lookup(node NodeName) (RewardAccount, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[node]
	return a, ok
}

// payoutDuty is a placeholder duty kind the event loop routes to the
// Section Funds Dispatcher; see fundsdispatcher.go for PayoutRequest.
func payoutDuty(amount Token, id AccountID) Duty {
	return SendDuty{Envelope: Envelope{Payload: PayoutRequest{Amount: amount, Account: id}}}
}
