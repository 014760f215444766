// Package orchestrator drives the end-to-end bundle submission pipeline:
// gate checks, chain state, payment pricing, tx2 forging, and parallel
// relay fan-out.
package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/swapnilraj/atomic-bundler/internal/bundlerrors"
	"github.com/swapnilraj/atomic-bundler/internal/config"
	"github.com/swapnilraj/atomic-bundler/internal/metrics"
	"github.com/swapnilraj/atomic-bundler/internal/payment"
	"github.com/swapnilraj/atomic-bundler/internal/policy"
	"github.com/swapnilraj/atomic-bundler/internal/relay"
	"github.com/swapnilraj/atomic-bundler/internal/storage"
	"github.com/swapnilraj/atomic-bundler/internal/txcodec"
)

const fallbackGasLimit = 21_000

// chainGateway is the slice of *chain.Gateway the orchestrator needs,
// narrowed to an interface so tests can substitute a fake RPC backend.
type chainGateway interface {
	LatestBaseFee(ctx context.Context) (*uint256.Int, error)
	NonceOf(ctx context.Context, address common.Address) (uint64, error)
	BalanceOf(ctx context.Context, address common.Address) (*uint256.Int, error)
	EstimateGas(ctx context.Context, rawTxHex string) (uint64, error)
}

// signerKeyProvider is the slice of *signerkey.Provider the orchestrator
// needs, narrowed to an interface for the same reason.
type signerKeyProvider interface {
	Key() (*ecdsa.PrivateKey, error)
}

// SubmitRequest is the inbound request to submit one atomic bundle.
type SubmitRequest struct {
	Tx1Hex      string
	TargetBlock *uint64
}

// RelayOutcome is one relay's result within a SubmitResponse.
type RelayOutcome struct {
	RelayName  string
	Accepted   bool
	BundleHash string
	Error      string
}

// SubmitResponse is returned to the caller of Submit.
type SubmitResponse struct {
	BundleID      string
	Tx1Hash       string
	Tx2Hash       string
	PaymentAmount *uint256.Int
	Formula       config.Formula
	Submissions   []RelayOutcome
}

// Orchestrator wires together the chain gateway, signer, policy gate,
// relay clients, and storage into the pipeline described by the
// component design: one request in, one aggregated response out.
type Orchestrator struct {
	snapshot *config.Snapshot
	gateway  chainGateway
	signer   signerKeyProvider
	gate     *policy.Gate
	store    *storage.Store
	metrics  *metrics.Collectors
	log      zerolog.Logger

	killswitch atomic.Bool
	relays     atomic.Pointer[[]*relay.Client]

	events chan BundleEvent
}

// BundleEvent is published on every terminal bundle outcome, for the
// live websocket feed.
type BundleEvent struct {
	BundleID  string    `json:"bundle_id"`
	Status    string    `json:"status"`
	Tx1Hash   string    `json:"tx1_hash"`
	Timestamp time.Time `json:"timestamp"`
}

func New(snapshot *config.Snapshot, gateway chainGateway, signer signerKeyProvider, gate *policy.Gate, store *storage.Store, collectors *metrics.Collectors, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		snapshot: snapshot,
		gateway:  gateway,
		signer:   signer,
		gate:     gate,
		store:    store,
		metrics:  collectors,
		log:      log,
		events:   make(chan BundleEvent, 64),
	}
	o.rebuildRelays(snapshot.Get())
	return o
}

// Events exposes the live bundle-event stream for the websocket feed.
func (o *Orchestrator) Events() <-chan BundleEvent { return o.events }

// SetKillswitch flips the emergency stop gate; while active, Submit
// refuses every request with KindKillswitchActive.
func (o *Orchestrator) SetKillswitch(active bool) {
	o.killswitch.Store(active)
}

func (o *Orchestrator) KillswitchActive() bool { return o.killswitch.Load() }

// ReloadConfig rebuilds the relay client pool from the latest snapshot,
// used after a successful admin config reload.
func (o *Orchestrator) ReloadConfig(cfg *config.Config) {
	o.rebuildRelays(cfg)
}

func (o *Orchestrator) rebuildRelays(cfg *config.Config) {
	clients := make([]*relay.Client, 0, len(cfg.Builders))
	for _, b := range cfg.Builders {
		if !b.Enabled {
			continue
		}
		clients = append(clients, relay.New(b))
	}
	o.relays.Store(&clients)
}

// EnabledRelays returns the current set of enabled relay clients, used
// by the scheduler to drive its health-check loop.
func (o *Orchestrator) EnabledRelays() []*relay.Client {
	return o.enabledRelays()
}

func (o *Orchestrator) enabledRelays() []*relay.Client {
	p := o.relays.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Submit runs the full pipeline for one zero-fee transaction.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	start := time.Now()
	defer func() { o.metrics.SubmitLatency.Observe(time.Since(start).Seconds()) }()

	if o.killswitch.Load() {
		return nil, bundlerrors.New(bundlerrors.KindKillswitchActive, "submission halted by operator killswitch")
	}

	relays := o.enabledRelays()
	if len(relays) == 0 {
		return nil, bundlerrors.New(bundlerrors.KindNoEnabledBuilders, "no enabled builder relays configured")
	}

	cfg := o.snapshot.Get()

	tx1, err := txcodec.Decode(req.Tx1Hex)
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindInvalidTx1Hex, "decode tx1", err)
	}

	signerKey, err := o.signer.Key()
	if err != nil {
		return nil, err
	}
	signerAddr := txcodec.DeriveAddress(signerKey)

	baseFee, err := o.gateway.LatestBaseFee(ctx)
	if err != nil {
		return nil, err
	}

	// tx2's fee cap is derived from the current base fee, not copied
	// from tx1: max_priority_fee_per_gas = 0, max_fee_per_gas = 1.5x base fee.
	tx2PriorityFeePerGas := uint256.NewInt(0)
	tx2MaxFeePerGas := new(uint256.Int).Div(new(uint256.Int).Mul(baseFee, uint256.NewInt(3)), uint256.NewInt(2))

	gasUsed, err := o.gateway.EstimateGas(ctx, req.Tx1Hex)
	if err != nil {
		o.log.Warn().Err(err).Msg("tx1 gas estimation failed, using fallback")
		gasUsed = fallbackGasLimit
	}
	gasUsed += fallbackGasLimit // account for the payment transaction itself

	k2, err := config.ParseWei(cfg.Payment.K2Wei)
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindInternal, "parse k2_wei", err)
	}
	maxAmount, err := config.ParseWei(cfg.Payment.MaxAmountWei)
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindInternal, "parse max_amount_wei", err)
	}
	formula, err := config.ParseFormula(cfg.Payment.Formula)
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindInternal, "parse payment formula", err)
	}

	priced, err := payment.Calculate(payment.Params{
		GasUsed:              gasUsed,
		BaseFeePerGas:        baseFee,
		MaxPriorityFeePerGas: uint256.NewInt(0),
		Formula:              formula,
		K1:                   cfg.Payment.K1,
		K2:                   k2,
		MaxAmount:            maxAmount,
	})
	if err != nil {
		return nil, err
	}

	gasCost, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(fallbackGasLimit), tx2MaxFeePerGas)
	if overflow {
		return nil, bundlerrors.New(bundlerrors.KindPaymentCalculationOverflow, "tx2 gas cost overflow")
	}
	required, overflow := new(uint256.Int).AddOverflow(gasCost, priced.AmountWei)
	if overflow {
		return nil, bundlerrors.New(bundlerrors.KindPaymentCalculationOverflow, "required balance overflow")
	}

	balance, err := o.gateway.BalanceOf(ctx, signerAddr)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(required) < 0 {
		return nil, bundlerrors.New(bundlerrors.KindInsufficientSignerBalance, "signer balance insufficient for payment amount and gas cost").
			WithField("signer", signerAddr.Hex()).
			WithField("balanceWei", balance.Dec()).
			WithField("requiredWei", required.Dec())
	}

	if err := o.gate.CheckAndCommit(priced.AmountWei); err != nil {
		return nil, err
	}
	dailySpent, _ := new(big.Float).SetInt(o.gate.Snapshot().TotalWei.ToBig()).Float64()
	o.metrics.DailySpendingWei.Set(dailySpent)

	nonce, err := o.gateway.NonceOf(ctx, signerAddr)
	if err != nil {
		return nil, err
	}

	bundleID := uuid.New().String()
	now := time.Now().UTC()

	type submission struct {
		outcome RelayOutcome
		tx2Hash string
	}

	results := make([]submission, len(relays))
	g, gctx := errgroup.WithContext(ctx)
	for i, rc := range relays {
		i, rc := i, rc
		g.Go(func() error {
			paymentAddr := common.HexToAddress(rc.PaymentAddress())
			forged, ferr := txcodec.Forge(txcodec.ForgeParams{
				To:                   paymentAddr,
				Value:                priced.AmountWei,
				ChainID:              cfg.Network.ChainID,
				Nonce:                nonce,
				MaxFeePerGas:         tx2MaxFeePerGas,
				MaxPriorityFeePerGas: tx2PriorityFeePerGas,
				GasLimit:             fallbackGasLimit,
				SignerKey:            signerKey,
			})
			if ferr != nil {
				results[i] = submission{outcome: RelayOutcome{RelayName: rc.Name, Accepted: false, Error: ferr.Error()}}
				return nil
			}

			bundleHash, serr := rc.SubmitBundle(gctx, []string{req.Tx1Hex, forged.RawHex}, req.TargetBlock)
			if serr != nil {
				results[i] = submission{
					outcome: RelayOutcome{RelayName: rc.Name, Accepted: false, Error: serr.Error()},
					tx2Hash: forged.Hash,
				}
				o.metrics.RelayRejections.WithLabelValues(rc.Name).Inc()
				return nil
			}
			if bundleHash == "" {
				bundleHash = forged.Hash
			}
			results[i] = submission{
				outcome: RelayOutcome{RelayName: rc.Name, Accepted: true, BundleHash: bundleHash},
				tx2Hash: forged.Hash,
			}
			o.metrics.RelayAcceptances.WithLabelValues(rc.Name).Inc()
			return nil
		})
	}
	_ = g.Wait() // per-relay errors are captured in results, not propagated

	outcomes := make([]RelayOutcome, len(results))
	var tx2Hash string
	anyAccepted := false
	for i, r := range results {
		outcomes[i] = r.outcome
		if r.tx2Hash != "" {
			tx2Hash = r.tx2Hash
		}
		if r.outcome.Accepted {
			anyAccepted = true
		}
	}

	status := "rejected"
	if anyAccepted {
		status = "submitted"
	}

	if o.store != nil {
		_ = o.store.InsertBundle(ctx, storage.Bundle{
			ID:               bundleID,
			Tx1Hash:          tx1.Hash.Hex(),
			Tx2Hash:          tx2Hash,
			SignerAddress:    signerAddr.Hex(),
			PaymentAmountWei: priced.AmountWei.Dec(),
			Formula:          string(formula),
			TargetBlock:      req.TargetBlock,
			Status:           status,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		for _, r := range results {
			_ = o.store.InsertRelaySubmission(ctx, storage.RelaySubmission{
				BundleID:    bundleID,
				RelayName:   r.outcome.RelayName,
				Accepted:    r.outcome.Accepted,
				BundleHash:  r.outcome.BundleHash,
				Error:       r.outcome.Error,
				SubmittedAt: now,
			})
		}
	}

	if anyAccepted {
		o.metrics.BundlesSubmitted.Inc()
	} else {
		o.metrics.BundlesRejected.Inc()
	}
	select {
	case o.events <- BundleEvent{BundleID: bundleID, Status: status, Tx1Hash: tx1.Hash.Hex(), Timestamp: now}:
	default: // slow or absent websocket consumers never block the pipeline
	}

	return &SubmitResponse{
		BundleID:      bundleID,
		Tx1Hash:       tx1.Hash.Hex(),
		Tx2Hash:       tx2Hash,
		PaymentAmount: priced.AmountWei,
		Formula:       formula,
		Submissions:   outcomes,
	}, nil
}
