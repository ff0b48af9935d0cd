package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveView(t *testing.T) {
	tests := map[string]View{
		"":               ViewHome,
		"#/":             ViewHome,
		"#/menu":         ViewMenu,
		"/menu?cat=Plat": ViewMenu,
		"orders":         ViewOrders,
		"/ADMIN/":        ViewAdmin,
		"#/auth/login":   ViewLogin,
		"/about":         ViewAbout,
		"/unknown":       ViewHome,
		"#/admin/menu":   ViewHome,
	}
	for in, want := range tests {
		assert.Equal(t, want, ResolveView(in), in)
	}
}

func TestGuard(t *testing.T) {
	tests := []struct {
		view     View
		authed   bool
		want     View
		redirect bool
	}{
		{ViewMenu, false, ViewLogin, true},
		{ViewHome, false, ViewLogin, true},
		{ViewAdmin, false, ViewLogin, true},
		{ViewOrders, false, ViewOrders, false},
		{ViewLogin, false, ViewLogin, false},
		{ViewLogin, true, ViewHome, true},
		{ViewMenu, true, ViewMenu, false},
	}
	for _, tt := range tests {
		got, redirect := Guard(tt.view, tt.authed)
		assert.Equal(t, tt.want, got, "%s authed=%v", tt.view, tt.authed)
		assert.Equal(t, tt.redirect, redirect, "%s authed=%v", tt.view, tt.authed)
	}
}

func TestNavigatorHistory(t *testing.T) {
	n := NewNavigator(NavState{})
	assert.Equal(t, ViewHome, n.Pathname())

	var seen []View
	cancel := n.OnChange(func(v View) { seen = append(seen, v) })

	n.Push("/menu")
	n.Push("#/orders")
	assert.Equal(t, ViewOrders, n.Pathname())

	n.Replace("/about")
	assert.Equal(t, []View{ViewHome, ViewMenu, ViewAbout}, n.State().History)

	assert.Equal(t, ViewMenu, n.Back())
	assert.Equal(t, ViewHome, n.Back())
	assert.Equal(t, ViewHome, n.Back(), "first entry stays")

	cancel()
	cancel()
	n.Push("/menu")
	assert.Equal(t, []View{ViewMenu, ViewOrders, ViewAbout, ViewMenu, ViewHome, ViewHome}, seen)
}

func TestNavigatorSync(t *testing.T) {
	n := NewNavigator(NavState{History: []View{ViewHome, ViewMenu}})

	assert.Equal(t, ViewMenu, n.Sync("#/menu"))
	assert.Len(t, n.State().History, 2)

	assert.Equal(t, ViewHome, n.Sync("#/"))
	assert.Equal(t, []View{ViewHome}, n.State().History)

	assert.Equal(t, ViewOrders, n.Sync("#/orders"))
	assert.Equal(t, []View{ViewHome, ViewOrders}, n.State().History)
}

func TestNavigatorRestoresStateAndCapsHistory(t *testing.T) {
	n := NewNavigator(NavState{History: []View{"/nowhere", ViewMenu}})
	assert.Equal(t, []View{ViewMenu}, n.State().History)

	for i := 0; i < maxHistory+10; i++ {
		n.Push("/orders")
	}
	assert.Len(t, n.State().History, maxHistory)
}
