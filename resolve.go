package mimir

import (
	"context"
	"errors"
	"fmt"
)

// MaxCallDepth bounds wrapper nesting; the chain call size limit keeps real
// calls far below it.
const MaxCallDepth = 64

// Step records one unwrapped wrapper layer.
type Step struct {
	Kind      CallKind  `json:"kind"`
	Signer    Address   `json:"signer"`
	Target    Address   `json:"target"`
	Delegate  Address   `json:"delegate,omitempty"`
	ProxyType string    `json:"proxy_type,omitempty"`
	Threshold uint16    `json:"threshold,omitempty"`
	Members   []Address `json:"members,omitempty"`
}

// Resolution is the effective signer of a call and its innermost call.
type Resolution struct {
	Target Address `json:"target"`
	Call   *Call   `json:"call"`
	Steps  []Step  `json:"steps,omitempty"`
}

// Resolve unwraps proxy and multisig wrapper calls submitted by signer,
// one layer per step, until a business call is reached. Unknown calls are
// returned unchanged, which makes Resolve idempotent on its own output.
func Resolve(signer Address, call *Call) (*Resolution, error) {
	res := &Resolution{
		Target: signer,
		Call:   call,
	}

	for depth := 0; ; depth++ {
		kind := KindOf(res.Call)
		if kind == CallTerminal {
			return res, nil
		}

		if depth >= MaxCallDepth {
			return nil, malformed(res.Call, "", fmt.Errorf("nesting deeper than %d", MaxCallDepth))
		}

		step, inner, err := unwrap(kind, res.Target, res.Call)
		if err != nil {
			return nil, err
		}

		res.Steps = append(res.Steps, step)
		res.Target = step.Target
		res.Call = inner
	}
}

func unwrap(kind CallKind, signer Address, call *Call) (Step, *Call, error) {
	step := Step{Kind: kind, Signer: signer}

	switch kind {
	case CallProxy:
		real, err := argAddress(call, "real")
		if err != nil {
			return step, nil, err
		}

		inner, err := argCall(call, "call")
		if err != nil {
			return step, nil, err
		}

		step.Target = real
		step.ProxyType = argString(call, "forceProxyType")
		return step, inner, nil
	case CallProxyAnnounced:
		delegate, err := argAddress(call, "delegate")
		if err != nil {
			return step, nil, err
		}

		real, err := argAddress(call, "real")
		if err != nil {
			return step, nil, err
		}

		inner, err := argCall(call, "call")
		if err != nil {
			return step, nil, err
		}

		step.Target = real
		step.Delegate = delegate
		step.ProxyType = argString(call, "forceProxyType")
		return step, inner, nil
	case CallAsMulti, CallAsMultiThreshold1:
		threshold := uint16(1)
		if kind == CallAsMulti {
			t, err := argUint16(call, "threshold")
			if err != nil {
				return step, nil, err
			}

			threshold = t
		}

		others, err := argAddresses(call, "otherSignatories")
		if err != nil {
			return step, nil, err
		}

		inner, err := argCall(call, "call")
		if err != nil {
			return step, nil, err
		}

		members := make([]Address, 0, len(others)+1)
		members = SortAddresses(append(append(members, others...), signer))
		target, err := DeriveMultisigAddress(members, threshold)
		if err != nil {
			return step, nil, malformed(call, "otherSignatories", err)
		}

		step.Target = target
		step.Threshold = threshold
		step.Members = members
		return step, inner, nil
	default:
		return step, nil, malformed(call, "", errors.New("unsupported wrapper"))
	}
}

// CallResolver decodes raw calls through the chain client before resolving.
type CallResolver struct {
	chain ChainClient
}

func NewCallResolver(chain ChainClient) *CallResolver {
	return &CallResolver{chain: chain}
}

func (r *CallResolver) ResolveHex(ctx context.Context, network string, signer Address, callHex string) (*Resolution, error) {
	call, err := r.chain.DecodeCall(ctx, network, callHex)
	if err != nil {
		return nil, fmt.Errorf("decode call: %w", err)
	}

	if call.Data == "" {
		call.Data = callHex
	}

	return Resolve(signer, call)
}
