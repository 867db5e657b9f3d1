package core

import "testing"

func TestFarmingAddAccountRejectsDuplicate(t *testing.T) {
	f := NewFarmingSystem()
	if err := f.AddAccount("acct-1", 5); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if err := f.AddAccount("acct-1", 0); err == nil {
		t.Fatalf("expected error re-adding an existing account")
	}
}

func TestFarmingRewardSplitsEvenlyAcrossAccounts(t *testing.T) {
	f := NewFarmingSystem()
	f.AddAccount("a", 0)
	f.AddAccount("b", 0)

	if err := f.Reward([]byte("write-1"), 100, 2.0); err != nil {
		t.Fatalf("Reward: %v", err)
	}

	ca, _ := f.Claim("a")
	cb, _ := f.Claim("b")
	if ca.Reward != cb.Reward {
		t.Fatalf("reward split not even: a=%d b=%d", ca.Reward, cb.Reward)
	}
	if ca.Work != 1 || cb.Work != 1 {
		t.Fatalf("work not incremented evenly: a=%d b=%d", ca.Work, cb.Work)
	}
}

func TestFarmingRewardIsReplaySafe(t *testing.T) {
	f := NewFarmingSystem()
	f.AddAccount("a", 0)
	data := []byte("same write twice")

	if err := f.Reward(data, 50, 2.0); err != nil {
		t.Fatalf("first Reward: %v", err)
	}
	if err := f.Reward(data, 50, 2.0); err != nil {
		t.Fatalf("second Reward: %v", err)
	}
	c, _ := f.Claim("a")
	if c.Reward != Token(100) {
		t.Fatalf("reward = %d, want 100 (replay of identical data must be a no-op)", c.Reward)
	}
}

func TestFarmingClaimIsExactlyOnce(t *testing.T) {
	f := NewFarmingSystem()
	f.AddAccount("a", 3)
	if _, err := f.Claim("a"); err != nil {
		t.Fatalf("first Claim: %v", err)
	}
	if _, err := f.Claim("a"); err != errNoSuchAccount {
		t.Fatalf("second Claim err = %v, want errNoSuchAccount", err)
	}
}

func TestFarmingRewardWithNoAccountsIsNoop(t *testing.T) {
	f := NewFarmingSystem()
	if err := f.Reward([]byte("orphaned write"), 10, 2.0); err != nil {
		t.Fatalf("Reward: %v", err)
	}
}

func TestFarmingWorkMonotonicAcrossClaimAndReAdd(t *testing.T) {
	f := NewFarmingSystem()
	f.AddAccount("a", 10)
	f.Reward([]byte("bump"), 1, 1.0)
	before, _ := f.Work("a")

	counter, err := f.Claim("a")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if counter.Work != before {
		t.Fatalf("claimed work %d != observed work %d", counter.Work, before)
	}

	if err := f.AddAccount("a", counter.Work); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	after, _ := f.Work("a")
	if after < before {
		t.Fatalf("work regressed across relocation: before=%d after=%d", before, after)
	}
}
