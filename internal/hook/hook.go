// Package hook implements the Hook Engine collaborator (section 4.8):
// Validation/Critical/Business group execution semantics over whichever
// HookAdapter transport variant (in-process, gRPC, webhook) is wired at
// boot.
package hook

import (
	"context"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
)

// Chain runs a fixed set of hooks at one HookPoint, applying the group
// execution semantics from section 4.2: Validation and Critical hooks run
// serially and fail-fast; Business hooks run serially too but a failure
// never blocks the send.
type Chain struct {
	hooks []ports.Hook
}

// NewChain builds a Chain from hooks, in the order they should run.
// Callers are expected to order Validation hooks before Critical before
// Business, matching section 4.2's grouping.
func NewChain(hooks ...ports.Hook) *Chain {
	return &Chain{hooks: hooks}
}

// Run executes every hook in order at point. The first Validation or
// Critical hook to fail aborts the chain and its error is returned;
// Business hook failures are logged and do not abort.
func (c *Chain) Run(ctx context.Context, point ports.HookPoint, env *ports.HookEnvelope) error {
	for _, h := range c.hooks {
		err := h.Invoke(ctx, point, env)
		if err == nil {
			continue
		}
		switch h.Group() {
		case ports.HookValidation, ports.HookCritical:
			return err
		case ports.HookBusiness:
			logger.L().WarnContext(ctx, "business hook failed, continuing", "error", err)
		}
	}
	return nil
}

// RunAsync fires a chain for a point whose failures must never propagate
// (PostSend, Delivery audits). Matches the fire-and-forget goroutine
// pattern described in SPEC_FULL.md's ambient stack / goroutine notes.
func (c *Chain) RunAsync(ctx context.Context, point ports.HookPoint, env *ports.HookEnvelope) {
	go func() {
		if err := c.Run(ctx, point, env); err != nil {
			logger.L().WarnContext(ctx, "async hook chain failed", "point", point, "error", err)
		}
	}()
}
