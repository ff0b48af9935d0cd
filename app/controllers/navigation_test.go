package controllers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/pkg/cache"
	"github.com/uvci/resto/pkg/session"
)

func TestRedirectToLoginKeepsLaterHistory(t *testing.T) {
	mgr := session.NewManager(cache.NewMemory(), session.DefaultOptions())
	ctx := context.Background()

	// The realtime connection holds this handle from the moment it opened.
	conn, err := mgr.Load(ctx, "")
	require.NoError(t, err)
	require.NoError(t, conn.Put(navKey, services.NavState{History: []services.View{services.ViewHome}}))
	require.NoError(t, conn.Save(ctx))

	// Navigation requests made after the connection opened.
	for _, target := range []string{"/menu", "/orders"} {
		req, err := mgr.Load(ctx, conn.ID())
		require.NoError(t, err)
		nav, stop := loadNavigator(req)
		nav.Push(target)
		stop()
		require.NoError(t, req.Save(ctx))
	}

	redirectToLogin(ctx, conn)

	after, err := mgr.Load(ctx, conn.ID())
	require.NoError(t, err)
	var state services.NavState
	ok, err := after.Decode(navKey, &state)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []services.View{services.ViewHome, services.ViewMenu, services.ViewOrders, services.ViewLogin}, state.History)
}
