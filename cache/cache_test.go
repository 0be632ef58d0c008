package cache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/findy-network/findy-agent-conn/cache"
	"github.com/findy-network/findy-agent-conn/connection"
	"github.com/findy-network/findy-agent-conn/connectiontest"
	"github.com/findy-network/findy-agent-conn/connerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlesAreIsolated(t *testing.T) {
	ctx := context.Background()
	net := connectiontest.NewNetwork()
	cfg := connectiontest.NewFixtureConfig(net, "inviter")

	c := cache.New("test-cache")
	h1 := c.Add(connection.New("conn-a", connection.RoleInviter, cfg))
	h2 := c.Add(connection.New("conn-b", connection.RoleInviter, cfg))

	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.GetMut(h1, func(conn *connection.Connection) error {
		return conn.Connect(ctx)
	}))

	var sourceIDAfter string
	require.NoError(t, c.Get(h1, func(conn *connection.Connection) error {
		sourceIDAfter = conn.SourceID()
		return nil
	}))
	assert.Equal(t, "conn-a", sourceIDAfter)

	// h2 must be untouched by the h1 mutation above.
	require.NoError(t, c.Get(h2, func(conn *connection.Connection) error {
		assert.EqualValues(t, 1, conn.State(), "conn-b is still Null")
		return nil
	}))
}

func TestUnknownHandleViaGet(t *testing.T) {
	c := cache.New("test-cache")
	err := c.Get(999, func(*connection.Connection) error { return nil })
	require.Error(t, err)
	var cerr *connerr.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, connerr.InvalidHandle, cerr.Kind)
}

func TestUnknownHandleViaRelease(t *testing.T) {
	c := cache.New("test-cache")
	err := c.Release(999)
	require.Error(t, err)
	var cerr *connerr.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, connerr.InvalidConnectionHandle, cerr.Kind)
}

func TestReleaseDropsHandle(t *testing.T) {
	net := connectiontest.NewNetwork()
	cfg := connectiontest.NewFixtureConfig(net, "inviter")
	c := cache.New("test-cache")
	h := c.Add(connection.New("conn-a", connection.RoleInviter, cfg))

	require.NoError(t, c.Release(h))
	assert.Equal(t, 0, c.Len())

	err := c.Get(h, func(*connection.Connection) error { return nil })
	require.Error(t, err)
}

func TestReleaseAll(t *testing.T) {
	net := connectiontest.NewNetwork()
	cfg := connectiontest.NewFixtureConfig(net, "inviter")
	c := cache.New("test-cache")
	c.Add(connection.New("conn-a", connection.RoleInviter, cfg))
	c.Add(connection.New("conn-b", connection.RoleInviter, cfg))

	c.ReleaseAll()
	assert.Equal(t, 0, c.Len())
}
