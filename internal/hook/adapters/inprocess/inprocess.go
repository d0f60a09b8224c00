// Package inprocess implements the default in-process HookAdapter
// variant: a registered Go closure chain, used for unit tests and the
// default boot configuration when no external hook service is
// configured.
package inprocess

import (
	"context"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
)

// Func is the closure shape a caller registers.
type Func func(ctx context.Context, point ports.HookPoint, env *ports.HookEnvelope) error

// Adapter wraps a Func as a ports.Hook of a fixed group.
type Adapter struct {
	group HookGroup
	fn    Func
}

// HookGroup mirrors ports.HookGroup to avoid importing ports twice in
// call sites that only need the constant.
type HookGroup = ports.HookGroup

// New builds an in-process hook.
func New(group HookGroup, fn Func) *Adapter {
	return &Adapter{group: group, fn: fn}
}

func (a *Adapter) Group() ports.HookGroup { return a.group }

func (a *Adapter) Invoke(ctx context.Context, point ports.HookPoint, env *ports.HookEnvelope) error {
	return a.fn(ctx, point, env)
}
