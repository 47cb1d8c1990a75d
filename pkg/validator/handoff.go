package validator

import (
	"context"
	"errors"

	"github.com/marmos91/dittobroker/pkg/broker"
)

// HandoffParam is the request parameter carrying a handoff token.
const HandoffParam = "handoff_token"

var (
	ErrInvalidHandoff   = errors.New("handoff token unknown, expired or already used")
	ErrHandoffPrincipal = errors.New("handoff token was issued to another principal")
)

// Redeemer exchanges a single-use token for the principal it was issued to.
type Redeemer interface {
	Redeem(ctx context.Context, token string) (string, bool)
}

// Handoff authenticates requests that present a handoff token. Requests
// without one pass through for later validators to judge.
type Handoff struct {
	tokens Redeemer
}

// NewHandoff returns a handoff validator redeeming through tokens.
func NewHandoff(tokens Redeemer) *Handoff {
	return &Handoff{tokens: tokens}
}

func (h *Handoff) Name() string { return NameHandoff }

func (h *Handoff) Validate(ctx context.Context, req *broker.ConnectionRequest) error {
	token := req.Param(HandoffParam)
	if token == "" {
		return nil
	}
	// The token is consumed either way.
	delete(req.Params, HandoffParam)

	principal, ok := h.tokens.Redeem(ctx, token)
	if !ok {
		return ErrInvalidHandoff
	}
	if principal != req.Principal {
		return ErrHandoffPrincipal
	}
	req.AuthMethod = AuthHandoff
	return nil
}
