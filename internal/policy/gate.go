// Package policy enforces per-bundle, daily, and emergency-stop
// spending caps and owns the in-memory daily spending counter.
package policy

import (
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/swapnilraj/atomic-bundler/internal/bundlerrors"
)

// DailySpending is the process-local (date, total, count) record
// the policy gate tracks; it is reset when the UTC date advances.
type DailySpending struct {
	Date       string
	TotalWei   *uint256.Int
	BundleCount uint32
}

// Limits are the caps the gate enforces, sourced from operator config.
type Limits struct {
	PerBundleCapWei          *uint256.Int
	DailyCapWei               *uint256.Int
	EmergencyStopEnabled      bool
	EmergencyStopThresholdWei *uint256.Int
}

// DenialReason names why CheckAndCommit refused an amount.
type DenialReason string

const (
	DeniedPerBundle DenialReason = "per_bundle"
	DeniedDaily     DenialReason = "daily"
	DeniedEmergency DenialReason = "emergency"
)

// Gate owns the daily counter across requests under a single mutex.
type Gate struct {
	mu      sync.Mutex
	limits  Limits
	today   DailySpending
	nowFunc func() time.Time
}

func NewGate(limits Limits) *Gate {
	g := &Gate{limits: limits, nowFunc: time.Now}
	g.today = DailySpending{Date: g.currentDate(), TotalWei: uint256.NewInt(0)}
	return g
}

func (g *Gate) currentDate() string {
	return g.nowFunc().UTC().Format("2006-01-02")
}

// rollIfNeeded resets the counter when the UTC date has advanced.
// Callers must hold g.mu.
func (g *Gate) rollIfNeeded() {
	today := g.currentDate()
	if g.today.Date != today {
		g.today = DailySpending{Date: today, TotalWei: uint256.NewInt(0)}
	}
}

// Snapshot returns a copy of today's spending record for diagnostics.
func (g *Gate) Snapshot() DailySpending {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollIfNeeded()
	return DailySpending{
		Date:        g.today.Date,
		TotalWei:    new(uint256.Int).Set(g.today.TotalWei),
		BundleCount: g.today.BundleCount,
	}
}

// CheckAndCommit checks amount against the per-bundle, daily and
// emergency-stop caps and, on admission, adds it to today's counter
// under the same lock, returning a typed denial error otherwise.
func (g *Gate) CheckAndCommit(amount *uint256.Int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollIfNeeded()

	if amount.Cmp(g.limits.PerBundleCapWei) > 0 {
		return denialError(DeniedPerBundle)
	}

	newTotal, overflow := new(uint256.Int).AddOverflow(g.today.TotalWei, amount)
	if overflow {
		newTotal = new(uint256.Int).SetAllOne()
	}
	if newTotal.Cmp(g.limits.DailyCapWei) > 0 {
		return denialError(DeniedDaily)
	}

	if g.limits.EmergencyStopEnabled && amount.Cmp(g.limits.EmergencyStopThresholdWei) > 0 {
		return denialError(DeniedEmergency)
	}

	g.today.TotalWei = newTotal
	g.today.BundleCount++
	return nil
}

func denialError(reason DenialReason) error {
	return bundlerrors.New(bundlerrors.KindPolicyDenied, "payment denied by policy").
		WithField("reason", string(reason))
}
