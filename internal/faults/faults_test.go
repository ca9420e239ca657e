package faults

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ReportAndRead(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.HasFaults())
	assert.Empty(t, c.Faults())

	c.Report(Fault{Kind: KindLoad, Err: errors.New("disk gone"), Project: "/p", Document: "/p/d.templ"})

	require.True(t, c.HasFaults())
	reported := c.Faults()
	require.Len(t, reported, 1)
	assert.Equal(t, KindLoad, reported[0].Kind)
	assert.False(t, reported[0].Timestamp.IsZero())

	c.Clear()
	assert.False(t, c.HasFaults())
}

func TestCollector_FaultsReturnsCopy(t *testing.T) {
	c := NewCollector()
	c.Report(Fault{Kind: KindListener, Err: errors.New("boom"), Listener: "l"})

	first := c.Faults()
	first[0].Listener = "mutated"

	assert.Equal(t, "l", c.Faults()[0].Listener)
}

func TestCollector_SubscribersSeeNewFaults(t *testing.T) {
	c := NewCollector()
	var seen []Fault
	c.Subscribe(func(f Fault) { seen = append(seen, f) })

	c.Report(Fault{Kind: KindListener, Err: errors.New("a"), Listener: "x"})
	c.Report(Fault{Kind: KindLoad, Err: errors.New("b"), Project: "/p"})

	require.Len(t, seen, 2)
	assert.Equal(t, KindListener, seen[0].Kind)
	assert.Equal(t, KindLoad, seen[1].Kind)
}

func TestFault_String(t *testing.T) {
	listener := Fault{Kind: KindListener, Err: errors.New("boom"), Listener: "bridge"}
	assert.Equal(t, "listener bridge: boom", listener.String())

	load := Fault{Kind: KindLoad, Err: errors.New("gone"), Project: "/p", Document: "/p/d.templ"}
	assert.Equal(t, "load /p//p/d.templ: gone", load.String())
}

func TestProgrammingError(t *testing.T) {
	err := Programmingf("mutation off the foreground in %s", "DocumentAdded")
	assert.EqualError(t, err, "programming error: mutation off the foreground in DocumentAdded")
}
