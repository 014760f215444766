package relay

import (
	"encoding/json"
	"fmt"

	"github.com/swapnilraj/atomic-bundler/internal/bundlerrors"
)

// rpcError is the JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rawRPCResponse captures the envelope without committing to a shape
// for "result", since relay implementations disagree on it.
type rawRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// bundleHashResult is the shape some relays return: an object carrying
// the bundle hash under a named field.
type bundleHashResult struct {
	BundleHash string `json:"bundleHash"`
}

// parseSubmitResponse tolerantly parses an eth_sendBundle response
// across the shapes observed across builder relays:
//
//  1. {"result": "0x..."}                   - bundle hash as a bare string
//  2. {"result": {"bundleHash": "0x..."}}    - bundle hash nested in an object
//  3. {"result": true}                       - bare acceptance, no hash
//  4. {"error": {"code": ..., "message": ...}} - rejection
//
// Shape 3 yields an empty hash string; the caller falls back to the
// hash it already computed locally when submission succeeds without one.
func parseSubmitResponse(relayName string, body []byte) (string, error) {
	var resp rawRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", bundlerrors.New(bundlerrors.KindRelayInvalidResponse,
			fmt.Sprintf("relay %s: malformed JSON-RPC envelope: %v", relayName, err)).
			WithField("relay", relayName)
	}

	if resp.Error != nil {
		return "", bundlerrors.New(bundlerrors.KindRelayBundleRejected,
			fmt.Sprintf("relay %s rejected bundle: %s", relayName, resp.Error.Message)).
			WithField("relay", relayName).
			WithField("code", fmt.Sprint(resp.Error.Code))
	}

	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return "", bundlerrors.New(bundlerrors.KindRelayInvalidResponse,
			fmt.Sprintf("relay %s: response carried neither result nor error", relayName)).
			WithField("relay", relayName)
	}

	var asString string
	if err := json.Unmarshal(resp.Result, &asString); err == nil {
		return asString, nil
	}

	var asObject bundleHashResult
	if err := json.Unmarshal(resp.Result, &asObject); err == nil && asObject.BundleHash != "" {
		return asObject.BundleHash, nil
	}

	var asBool bool
	if err := json.Unmarshal(resp.Result, &asBool); err == nil {
		if asBool {
			return "", nil
		}
		return "", bundlerrors.New(bundlerrors.KindRelayBundleRejected,
			fmt.Sprintf("relay %s: result false", relayName)).
			WithField("relay", relayName)
	}

	return "", bundlerrors.New(bundlerrors.KindRelayInvalidResponse,
		fmt.Sprintf("relay %s: unrecognized result shape: %s", relayName, string(resp.Result))).
		WithField("relay", relayName)
}
