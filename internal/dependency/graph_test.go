package dependency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologicalOrderRespectsDependencies(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "guard-app", DependsOn: []NodeID{"xvfb"}})
	g.AddNode(Node{ID: "xvfb"})
	g.AddNode(Node{ID: "proxy", DependsOn: []NodeID{"guard-app"}})

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, 3)

	assert.Less(t, indexOf(order, "xvfb"), indexOf(order, "guard-app"),
		"a service must start after its dependencies")
	assert.Less(t, indexOf(order, "guard-app"), indexOf(order, "proxy"))
}

func TestTopologicalOrderIsDeterministic(t *testing.T) {
	build := func() *Graph {
		g := New()
		g.AddNode(Node{ID: "a"})
		g.AddNode(Node{ID: "b"})
		g.AddNode(Node{ID: "c", DependsOn: []NodeID{"a", "b"}})
		return g
	}

	first, err := build().TopologicalOrder()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := build().TopologicalOrder()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTopologicalOrderRejectsCycle(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a", DependsOn: []NodeID{"b"}})
	g.AddNode(Node{ID: "b", DependsOn: []NodeID{"a"}})
	g.AddNode(Node{ID: "c"})

	_, err := g.TopologicalOrder()
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []NodeID{"a", "b"}, cycleErr.Nodes)
}

func TestTopologicalOrderUnknownDependency(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a", DependsOn: []NodeID{"ghost"}})

	_, err := g.TopologicalOrder()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node")
}

func TestDependents(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "xvfb"})
	g.AddNode(Node{ID: "guard-app", DependsOn: []NodeID{"xvfb"}})
	g.AddNode(Node{ID: "proxy", DependsOn: []NodeID{"guard-app"}})

	assert.Equal(t, []NodeID{"guard-app"}, g.Dependents("xvfb"))
	assert.Equal(t, []NodeID{"proxy"}, g.Dependents("guard-app"))
	assert.Empty(t, g.Dependents("proxy"))
}

func TestAddNodeReplaces(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a", FriendlyName: "first"})
	g.AddNode(Node{ID: "a", FriendlyName: "second"})

	assert.Equal(t, 1, g.Len())
	assert.Equal(t, "second", g.Get("a").FriendlyName)
}

func indexOf(order []NodeID, id NodeID) int {
	for i, candidate := range order {
		if candidate == id {
			return i
		}
	}
	return -1
}
