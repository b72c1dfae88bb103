package signer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/base/badge-authorizer/internal/typeddata"
)

const signTypedDataMethod = "eth_signTypedData_v4"

// RPCCaller is the subset of *rpc.Client used to reach a signing agent.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// AgentSigner forwards typed data to a connected agent (a wallet extension, a node with
// unlocked accounts, clef) and waits for its answer. The agent may prompt a human; the
// wait is bounded only by ctx.
type AgentSigner struct {
	client RPCCaller
	from   common.Address
}

var _ Signer = (*AgentSigner)(nil)

func NewAgentSigner(client RPCCaller, from common.Address) *AgentSigner {
	return &AgentSigner{client: client, from: from}
}

// DialAgent connects to the agent at url. A zero from selects the first account the agent
// reports through eth_accounts.
func DialAgent(ctx context.Context, url string, from common.Address) (*AgentSigner, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signing agent: %w", err)
	}
	s, err := connectAgent(ctx, client, from)
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func connectAgent(ctx context.Context, client RPCCaller, from common.Address) (*AgentSigner, error) {
	if from == (common.Address{}) {
		var accounts []common.Address
		if err := client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
			return nil, fmt.Errorf("failed to list agent accounts: %w", err)
		}
		if len(accounts) == 0 {
			return nil, fmt.Errorf("signing agent exposes no accounts")
		}
		from = accounts[0]
	}
	return NewAgentSigner(client, from), nil
}

func (s *AgentSigner) Address() common.Address {
	return s.from
}

func (s *AgentSigner) Kind() string {
	return "agent"
}

func (s *AgentSigner) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	if err := typeddata.Validate(td); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(td)
	if err != nil {
		return nil, fmt.Errorf("failed to encode typed data: %w", err)
	}
	var sig hexutil.Bytes
	if err := s.client.CallContext(ctx, &sig, signTypedDataMethod, s.from, string(payload)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSigningRejected, signTypedDataMethod, err)
	}
	return normalize(sig)
}
