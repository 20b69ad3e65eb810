package balancerd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickRoundRobinsOverActiveBackends(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert(Backend{NodeID: "a", Address: "127.0.0.1", ServicePort: 5555})
	tbl.Upsert(Backend{NodeID: "b", Address: "127.0.0.1", ServicePort: 5556})

	seen := make(map[string]int)
	var order []string
	for i := 0; i < 10; i++ {
		b, ok := tbl.Pick()
		require.True(t, ok)
		seen[b.NodeID]++
		order = append(order, b.NodeID)
	}
	assert.Equal(t, 5, seen["a"])
	assert.Equal(t, 5, seen["b"])

	// Active() must return a stable node-id order across calls, or the
	// atomic cursor in Pick doesn't actually alternate between backends.
	assert.Equal(t, []string{"a", "b", "a", "b", "a", "b", "a", "b", "a", "b"}, order)
}

func TestPickReturnsFalseWhenEmpty(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Pick()
	assert.False(t, ok)
}

func TestSetActiveExcludesFromPick(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert(Backend{NodeID: "a", Address: "127.0.0.1", ServicePort: 5555})
	tbl.SetActive("a", false)

	_, ok := tbl.Pick()
	assert.False(t, ok)
}

func TestUpsertPreservesServicePortWhenOmitted(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert(Backend{NodeID: "a", Address: "127.0.0.1", ServicePort: 5555})
	tbl.Upsert(Backend{NodeID: "a", Address: "10.0.0.2"})

	b, ok := tbl.Pick()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", b.Address)
	assert.Equal(t, 5555, b.ServicePort)
}
