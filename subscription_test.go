package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscriptionTableFirstMatchWins(t *testing.T) {
	tbl := newSubscriptionTable()
	var calledA, calledB bool
	tbl.add(&Subscription{Filter: "a/+", Handler: func(*Session, MessageView) { calledA = true }})
	tbl.add(&Subscription{Filter: "a/#", Handler: func(*Session, MessageView) { calledB = true }})

	sub, ok := tbl.dispatchTarget("a/b")
	require.True(t, ok)
	sub.Handler(nil, MessageView{})
	require.True(t, calledA)
	require.False(t, calledB)
}

func TestSubscriptionTableRemoveFilter(t *testing.T) {
	tbl := newSubscriptionTable()
	tbl.add(&Subscription{Filter: "a/b"})
	tbl.add(&Subscription{Filter: "a/b"})
	tbl.add(&Subscription{Filter: "c/d"})
	tbl.removeFilter("a/b")

	_, ok := tbl.dispatchTarget("a/b")
	require.False(t, ok)
	_, ok = tbl.dispatchTarget("c/d")
	require.True(t, ok)
}

func TestSubscriptionTableMasterPrefix(t *testing.T) {
	tbl := newSubscriptionTable()
	tbl.addMasterPrefix("devices/d1")
	prefix, ok := underMasterPrefix("devices/d1/status", tbl.masterPrefixes)
	require.True(t, ok)
	require.Equal(t, "devices/d1", prefix)
}
