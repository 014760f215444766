package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/swapnilraj/atomic-bundler/internal/bundlerrors"
	"github.com/swapnilraj/atomic-bundler/internal/orchestrator"
)

type submitBundleRequest struct {
	Tx1         string          `json:"tx1"`
	Payment     json.RawMessage `json:"payment,omitempty"` // accepted, ignored
	TargetBlock *uint64         `json:"target_block,omitempty"`
}

// relayOutcomeResponse matches the wire shape builders see documented
// for the submissions array: {builder, status, response|error}.
type relayOutcomeResponse struct {
	Builder  string `json:"builder"`
	Status   string `json:"status"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

type submitBundleResponse struct {
	BundleID      string                 `json:"bundleId"`
	Tx1Hash       string                 `json:"tx1_hash,omitempty"`
	Tx2Hash       string                 `json:"tx2_hash,omitempty"`
	PaymentAmount string                 `json:"payment_amount_wei,omitempty"`
	Formula       string                 `json:"formula,omitempty"`
	Submissions   []relayOutcomeResponse `json:"submissions"`
}

func (s *Server) handleSubmitBundle(w http.ResponseWriter, r *http.Request) {
	var req submitBundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, bundlerrors.New(bundlerrors.KindInvalidTx1Hex, "malformed request body"))
		return
	}
	if req.Tx1 == "" {
		writeError(w, bundlerrors.New(bundlerrors.KindInvalidTx1Hex, "tx1 must not be empty"))
		return
	}

	resp, err := s.orchestrator.Submit(r.Context(), orchestrator.SubmitRequest{
		Tx1Hex:      req.Tx1,
		TargetBlock: req.TargetBlock,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	out := submitBundleResponse{
		BundleID:      resp.BundleID,
		Tx1Hash:       resp.Tx1Hash,
		Tx2Hash:       resp.Tx2Hash,
		PaymentAmount: resp.PaymentAmount.Dec(),
		Formula:       string(resp.Formula),
		Submissions:   make([]relayOutcomeResponse, len(resp.Submissions)),
	}
	for i, sub := range resp.Submissions {
		out.Submissions[i] = relayOutcomeToWire(sub)
	}
	writeJSON(w, http.StatusOK, out)
}

func relayOutcomeToWire(sub orchestrator.RelayOutcome) relayOutcomeResponse {
	if sub.Accepted {
		return relayOutcomeResponse{Builder: sub.RelayName, Status: "submitted", Response: sub.BundleHash}
	}
	return relayOutcomeResponse{Builder: sub.RelayName, Status: "failed", Error: sub.Error}
}

type bundleDetailResponse struct {
	ID               string                 `json:"id"`
	Tx1Hash          string                 `json:"tx1_hash"`
	Tx2Hash          string                 `json:"tx2_hash,omitempty"`
	SignerAddress    string                 `json:"signer_address"`
	PaymentAmountWei string                 `json:"payment_amount_wei"`
	Formula          string                 `json:"formula"`
	TargetBlock      *uint64                `json:"target_block,omitempty"`
	Status           string                 `json:"status"`
	CreatedAt        string                 `json:"created_at"`
	UpdatedAt        string                 `json:"updated_at"`
	Submissions      []relayOutcomeResponse `json:"submissions"`
}

func (s *Server) handleGetBundle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.store == nil {
		writeError(w, bundlerrors.New(bundlerrors.KindInternal, "bundle storage unavailable"))
		return
	}

	b, err := s.store.GetBundle(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if b == nil {
		http.Error(w, `{"error":"bundle not found"}`, http.StatusNotFound)
		return
	}

	subs, err := s.store.ListRelaySubmissions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	out := bundleDetailResponse{
		ID:               b.ID,
		Tx1Hash:          b.Tx1Hash,
		Tx2Hash:          b.Tx2Hash,
		SignerAddress:    b.SignerAddress,
		PaymentAmountWei: b.PaymentAmountWei,
		Formula:          b.Formula,
		TargetBlock:      b.TargetBlock,
		Status:           b.Status,
		CreatedAt:        b.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:        b.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Submissions:      make([]relayOutcomeResponse, len(subs)),
	}
	for i, sub := range subs {
		out.Submissions[i] = relayOutcomeResponse{
			Builder:  sub.RelayName,
			Status:   submissionStatus(sub.Accepted),
			Response: sub.BundleHash,
			Error:    sub.Error,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func submissionStatus(accepted bool) string {
	if accepted {
		return "submitted"
	}
	return "failed"
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Killswitch     bool              `json:"killswitch_active"`
	DailySpentWei  string            `json:"daily_spent_wei"`
	DailyBundles   uint32            `json:"daily_bundle_count"`
	RelayHealth    map[string]bool   `json:"relay_health"`
	EnabledRelays  []string          `json:"enabled_relays"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.snapshot.Get()
	snap := s.gate.Snapshot()

	relayHealth := make(map[string]bool)
	enabled := make([]string, 0, len(cfg.Builders))
	for _, b := range cfg.Builders {
		if !b.Enabled {
			continue
		}
		enabled = append(enabled, b.Name)
		if s.scheduler != nil {
			relayHealth[b.Name] = s.scheduler.IsHealthy(b.Name)
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Killswitch:    s.orchestrator.KillswitchActive(),
		DailySpentWei: snap.TotalWei.Dec(),
		DailyBundles:  snap.BundleCount,
		RelayHealth:   relayHealth,
		EnabledRelays: enabled,
	})
}

type killswitchRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleKillswitch(w http.ResponseWriter, r *http.Request) {
	var req killswitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, bundlerrors.New(bundlerrors.KindInternal, "malformed killswitch request"))
		return
	}
	s.orchestrator.SetKillswitch(req.Active)
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	prev, next, err := s.snapshot.Swap(s.configPath)
	if err != nil {
		writeError(w, bundlerrors.Wrap(bundlerrors.KindConfigInvalid, "config reload rejected", err))
		return
	}
	s.orchestrator.ReloadConfig(next)
	s.log.Info().
		Str("previous_network", prev.Network.Network).
		Str("next_network", next.Network.Network).
		Msg("configuration reloaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()
	body := map[string]string{}
	if be, ok := bundlerrors.As(err); ok {
		status = be.Kind.HTTPStatus()
		message = be.Message
		for k, v := range be.Fields {
			body[k] = v
		}
	}
	body["error"] = message
	writeJSON(w, status, body)
}
