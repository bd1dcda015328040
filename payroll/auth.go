package payroll

import (
	"context"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// PERMISSIONS
// =============================================================================

type Permission string

const (
	PermRun      Permission = "payroll:run"      // recompute drafts
	PermFinalize Permission = "payroll:finalize" // mark records processed
	PermAdjust   Permission = "payroll:adjust"   // edit deductions
	PermView     Permission = "payroll:view"     // read records and summaries
	PermAll      Permission = "payroll:*"
)

// Actor is the caller on whose behalf payroll operations run.
type Actor struct {
	ID          string
	Permissions []string
	System      bool // scheduler and other internal callers
}

// SystemActor is an internal caller holding every permission.
func SystemActor(id string) Actor {
	return Actor{ID: id, System: true}
}

func (a Actor) Can(p Permission) bool {
	if a.System {
		return true
	}
	for _, granted := range a.Permissions {
		if Permission(granted) == p || Permission(granted) == PermAll {
			return true
		}
	}
	return false
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok && a.ID != ""
}

// =============================================================================
// AUTHORIZER
// =============================================================================

// Authorizer decides whether the caller in ctx may perform p.
type Authorizer interface {
	Authorize(ctx context.Context, p Permission) (Actor, error)
}

// ContextAuthorizer checks the Actor attached with WithActor.
type ContextAuthorizer struct{}

func (ContextAuthorizer) Authorize(ctx context.Context, p Permission) (Actor, error) {
	a, ok := ActorFromContext(ctx)
	if !ok {
		return Actor{}, &generic.AuthorizationError{Permission: string(p)}
	}
	if !a.Can(p) {
		return Actor{}, &generic.AuthorizationError{ActorID: a.ID, Permission: string(p)}
	}
	return a, nil
}
