package recorder

import "context"

type previousStateKey struct{}

// WithPreviousState attaches the prior state of an entity that is about to be
// updated. OnBeforeUpdate records it as PreviousState when its type matches
// the updated entity. Without it UPDATE records carry no previous state.
func WithPreviousState(ctx context.Context, previous any) context.Context {
	return context.WithValue(ctx, previousStateKey{}, previous)
}

func previousState(ctx context.Context) (any, bool) {
	prev := ctx.Value(previousStateKey{})
	return prev, prev != nil
}
