package rules

// loadGraph maps a plugin key to the keys that must load after it.
// nodes keeps the input order so that every traversal is deterministic.
type loadGraph struct {
	nodes []string
	edges map[string][]string
}

func newLoadGraph(nodes []string) *loadGraph {
	g := &loadGraph{
		nodes: nodes,
		edges: make(map[string][]string, len(nodes)),
	}
	for _, n := range nodes {
		g.edges[n] = []string{}
	}
	return g
}

// addEdge records that to loads after from. Unknown keys are ignored:
// rules may name plugins that are not part of this sort.
func (g *loadGraph) addEdge(from, to string) {
	if _, ok := g.edges[from]; !ok {
		return
	}
	if _, ok := g.edges[to]; !ok {
		return
	}
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// firstCycle returns one cycle path (first element repeated at the end), or
// nil when the graph is acyclic.
func (g *loadGraph) firstCycle() []string {
	for _, scc := range g.tarjanSCC() {
		if len(scc) > 1 || g.hasSelfLoop(scc[0]) {
			return g.reconstructCyclePath(scc)
		}
	}
	return nil
}

func (g *loadGraph) hasSelfLoop(node string) bool {
	for _, neighbor := range g.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
func (g *loadGraph) tarjanSCC() [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath walks edges inside scc from its first member until
// it returns to the start.
func (g *loadGraph) reconstructCyclePath(scc []string) []string {
	if len(scc) == 1 {
		return []string{scc[0], scc[0]}
	}

	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[len(scc)-1]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g.edges[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}

// order performs a stable topological sort. Among plugins whose
// predecessors are all placed, the lowest priority goes first and ties keep
// input order. The graph must be acyclic.
func (g *loadGraph) order(priority map[string]int) []string {
	indegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		for _, to := range g.edges[n] {
			indegree[to]++
		}
	}

	placed := make(map[string]bool, len(g.nodes))
	out := make([]string, 0, len(g.nodes))
	for len(out) < len(g.nodes) {
		pick := ""
		for _, n := range g.nodes {
			if placed[n] || indegree[n] > 0 {
				continue
			}
			if pick == "" || priority[n] < priority[pick] {
				pick = n
			}
		}
		if pick == "" {
			// Unreachable for acyclic graphs.
			break
		}
		placed[pick] = true
		out = append(out, pick)
		for _, to := range g.edges[pick] {
			indegree[to]--
		}
	}
	return out
}
