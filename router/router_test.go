//go:build unit

package router_test

import (
	"testing"

	"github.com/hugolhafner/streambind/router"
	"github.com/stretchr/testify/require"
)

func TestResolveSingleTopic(t *testing.T) {
	t.Parallel()

	sub, err := router.Resolve("orders", router.Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"orders"}, sub.Topics)
	require.False(t, sub.IsPattern())
}

func TestResolveMultiplexedList(t *testing.T) {
	t.Parallel()

	sub, err := router.Resolve("orders, invoices ,shipments", router.Options{Multiplex: true})
	require.NoError(t, err)
	require.Equal(t, []string{"orders", "invoices", "shipments"}, sub.Topics)

	require.True(t, sub.Matches("orders"))
	require.True(t, sub.Matches("shipments"))
	require.False(t, sub.Matches("payments"))
}

func TestResolveListWithoutMultiplex(t *testing.T) {
	t.Parallel()

	_, err := router.Resolve("orders,invoices", router.Options{})
	require.ErrorIs(t, err, router.ErrMultiplexDisabled)
}

func TestResolvePattern(t *testing.T) {
	t.Parallel()

	sub, err := router.Resolve("orders-.*", router.Options{Pattern: true})
	require.NoError(t, err)
	require.True(t, sub.IsPattern())

	require.True(t, sub.Matches("orders-1"))
	require.True(t, sub.Matches("orders-eu"))
	require.False(t, sub.Matches("invoices-1"))
	// full match only, broker style
	require.False(t, sub.Matches("old-orders-1"))
}

func TestResolveInvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := router.Resolve("orders-[", router.Options{Pattern: true})
	require.Error(t, err)
}

func TestResolveEmptyDestination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		destination string
		opts        router.Options
	}{
		{"empty literal", "", router.Options{}},
		{"whitespace literal", "  ", router.Options{}},
		{"commas only", ",,,", router.Options{Multiplex: true}},
		{"empty pattern", "", router.Options{Pattern: true}},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				_, err := router.Resolve(tt.destination, tt.opts)
				require.ErrorIs(t, err, router.ErrEmptyDestination)
			},
		)
	}
}

func TestSplit(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b", "c"}, router.Split("a, b ,c"))
	require.Empty(t, router.Split(" , ,"))
}
