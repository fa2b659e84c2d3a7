package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_PushReplacePop(t *testing.T) {
	r := NewRouter(Route{Name: RouteHome})

	var changes []Change
	r.Subscribe(func(c Change) { changes = append(changes, c) })

	r.Push(Route{Name: RouteModule, ModuleID: "calm"})
	r.Push(Route{Name: "player", ModuleID: "calm", ContentID: "t1"})
	r.Replace(Route{Name: "player", ModuleID: "calm", ContentID: "t2"})

	assert.Equal(t, 3, r.Depth())
	assert.Equal(t, "t2", r.Focused().ContentID)
	assert.True(t, r.IsFocused("player"))

	popped, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, "t2", popped.ContentID)
	assert.True(t, r.IsFocused(RouteModule))

	require.Len(t, changes, 4)
	assert.Equal(t, []ChangeKind{ChangePush, ChangePush, ChangeReplace, ChangePop},
		[]ChangeKind{changes[0].Kind, changes[1].Kind, changes[2].Kind, changes[3].Kind})
	assert.Equal(t, RouteModule, changes[3].Focused.Name)
}

func TestRouter_PopKeepsRoot(t *testing.T) {
	r := NewRouter(Route{Name: RouteHome})

	_, ok := r.Pop()

	assert.False(t, ok)
	assert.Equal(t, RouteHome, r.Focused().Name)
}

func TestRouter_FocusPredicate(t *testing.T) {
	r := NewRouter(Route{Name: RouteHome})
	isPlayerFocused := r.FocusPredicate("player")

	assert.False(t, isPlayerFocused())
	r.Push(Route{Name: "player"})
	assert.True(t, isPlayerFocused())
}

func TestRouter_Unsubscribe(t *testing.T) {
	r := NewRouter(Route{Name: RouteHome})

	count := 0
	unsubscribe := r.Subscribe(func(Change) { count++ })
	r.Push(Route{Name: RouteModule})
	unsubscribe()
	r.Pop()

	assert.Equal(t, 1, count)
	assert.Len(t, r.Stack(), 1)
}
