package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type callLog struct {
	name  string
	calls *[]string
}

func (c callLog) OnBeforeCreate(_ context.Context, _ any) {
	*c.calls = append(*c.calls, c.name+":create")
}
func (c callLog) OnBeforeUpdate(_ context.Context, _ any) {
	*c.calls = append(*c.calls, c.name+":update")
}
func (c callLog) OnBeforeDelete(_ context.Context, _ any) {
	*c.calls = append(*c.calls, c.name+":delete")
}

func TestHooks_FanOutInRegistrationOrder(t *testing.T) {
	var calls []string
	var hooks Hooks
	hooks.Register(callLog{name: "first", calls: &calls})
	hooks.Register(nil)
	hooks.Register(callLog{name: "second", calls: &calls})

	ctx := context.Background()
	hooks.BeforeCreate(ctx, struct{}{})
	hooks.BeforeUpdate(ctx, struct{}{})
	hooks.BeforeDelete(ctx, struct{}{})

	assert.Equal(t, 2, hooks.Len())
	assert.Equal(t, []string{
		"first:create", "second:create",
		"first:update", "second:update",
		"first:delete", "second:delete",
	}, calls)
}

func TestHooks_ZeroValueIsNoop(t *testing.T) {
	var hooks Hooks
	assert.NotPanics(t, func() { hooks.BeforeCreate(context.Background(), nil) })
}
