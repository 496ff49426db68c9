package cms

import "context"

// An Op is a write operation on a collection.
type Op string

// Write operations.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type (
	// An Action is an operation attempted on a collection.
	Action struct {
		Collection string
		Op         Op
		// Public is true when the kind allows the operation to any actor.
		Public bool
	}

	// An Authorizer tells whether the current actor may perform an action.
	Authorizer interface {
		Allowed(ctx context.Context, action Action) bool
	}

	// AuthorizerFunc adapts a function to the Authorizer interface.
	AuthorizerFunc func(ctx context.Context, action Action) bool
)

// Allowed implements Authorizer.
func (f AuthorizerFunc) Allowed(ctx context.Context, action Action) bool {
	return f(ctx, action)
}

// Anonymous is the Authorizer of a visitor: only public actions are allowed.
var Anonymous Authorizer = AuthorizerFunc(func(_ context.Context, action Action) bool {
	return action.Public
})
