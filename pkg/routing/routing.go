// Package routing implements the Route Registry (spec.md §4.J): a
// directed graph of chains and inter-chain channels, direct/pre-seeded
// lookup with a BFS fallback bounded at 5 hops, and nested
// Packet-Forward-Middleware memo construction for multi-hop transfers.
//
// Grounded on original_source/crates/settlement/src/routing.rs's
// RouteRegistry (direct-channel-then-preconfigured-then-BFS lookup
// order, the 5-hop BFS bound, 10s/hop and 50000-unit/hop cost
// estimates) and build_pfm_memo (the nested-forward JSON shape).
package routing

import (
	"encoding/json"
	"sync"
)

// Hop is a single leg of a route: the chain being entered and the
// channel/port used to reach it.
type Hop struct {
	ChainID   string
	ChannelID string
	PortID    string
}

// Route is a complete path from a source to a destination chain.
type Route struct {
	SourceChain        string
	DestChain          string
	Hops               []Hop
	EstimatedSeconds   uint64
	EstimatedCostUnits uint64
}

type chainPair struct {
	src, dst string
}

// Registry is a directed graph of inter-chain channels plus a table of
// pre-seeded multi-hop routes, guarded by one RWMutex per this
// module's single-lock-per-aggregate convention.
type Registry struct {
	mu       sync.RWMutex
	channels map[chainPair]Hop    // direct channel src->dst
	byChain  map[string][]string  // adjacency: src -> [dst, ...]
	multiHop map[chainPair][]Route
}

// NewRegistry constructs an empty route registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[chainPair]Hop),
		byChain:  make(map[string][]string),
		multiHop: make(map[chainPair][]Route),
	}
}

// AddChannel registers a direct inter-chain channel from src to dst.
func (r *Registry) AddChannel(src, dst, channelID, portID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := chainPair{src, dst}
	if _, exists := r.channels[key]; !exists {
		r.byChain[src] = append(r.byChain[src], dst)
	}
	r.channels[key] = Hop{ChainID: dst, ChannelID: channelID, PortID: portID}
}

// AddRoute registers a pre-computed multi-hop route.
func (r *Registry) AddRoute(route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := chainPair{route.SourceChain, route.DestChain}
	r.multiHop[key] = append(r.multiHop[key], route)
}

// FindRoute resolves the best route from src to dst: same-chain is
// zero-hop, a direct channel is one-hop (~6s), otherwise the
// lowest-estimated-time pre-seeded route, otherwise a bounded BFS —
// spec.md §4.J's lookup order.
func (r *Registry) FindRoute(src, dst string) (Route, bool) {
	if src == dst {
		return Route{SourceChain: src, DestChain: dst}, true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if hop, ok := r.channels[chainPair{src, dst}]; ok {
		return Route{
			SourceChain:        src,
			DestChain:          dst,
			Hops:               []Hop{hop},
			EstimatedSeconds:   6,
			EstimatedCostUnits: 50000,
		}, true
	}

	if routes, ok := r.multiHop[chainPair{src, dst}]; ok && len(routes) > 0 {
		best := routes[0]
		for _, cand := range routes[1:] {
			if cand.EstimatedSeconds < best.EstimatedSeconds {
				best = cand
			}
		}
		return best, true
	}

	return r.findRouteBFS(src, dst)
}

// FindAllRoutes returns every known route from src to dst: the direct
// channel (if any) plus every pre-seeded multi-hop route. It does not
// run BFS — BFS is the FindRoute fallback of last resort, not an
// enumeration source.
func (r *Registry) FindAllRoutes(src, dst string) []Route {
	if src == dst {
		return []Route{{SourceChain: src, DestChain: dst}}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Route
	if hop, ok := r.channels[chainPair{src, dst}]; ok {
		out = append(out, Route{
			SourceChain:        src,
			DestChain:          dst,
			Hops:               []Hop{hop},
			EstimatedSeconds:   6,
			EstimatedCostUnits: 50000,
		})
	}
	out = append(out, r.multiHop[chainPair{src, dst}]...)
	return out
}

const maxBFSHops = 5

// findRouteBFS explores the channel graph breadth-first, bounded at
// maxBFSHops hops, preferring the first path found (fewest hops by
// construction of BFS) — spec.md §4.J: "Otherwise BFS up to 5 hops,
// preferring fewer hops then lower estimated time". Caller holds
// r.mu for reading.
func (r *Registry) findRouteBFS(src, dst string) (Route, bool) {
	type queued struct {
		chain string
		path  []Hop
	}

	visited := map[string]bool{src: true}
	queue := []queued{{chain: src, path: nil}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, next := range r.byChain[cur.chain] {
			if visited[next] {
				continue
			}
			hop := r.channels[chainPair{cur.chain, next}]
			path := append(append([]Hop{}, cur.path...), hop)

			if next == dst {
				n := uint64(len(path))
				return Route{
					SourceChain:        src,
					DestChain:          dst,
					Hops:               path,
					EstimatedSeconds:   n * 10,
					EstimatedCostUnits: n * 50000,
				}, true
			}

			if len(path) < maxBFSHops {
				visited[next] = true
				queue = append(queue, queued{chain: next, path: path})
			}
		}
	}

	return Route{}, false
}

// CalculateRouteCost estimates the gas cost of a route from its hop
// count — 50000 units per hop, zero for a same-chain route.
func CalculateRouteCost(route Route) uint64 {
	if len(route.Hops) == 0 {
		return 0
	}
	return uint64(len(route.Hops)) * 50000
}

// CalculateRouteTime estimates the transfer time of a route: 6s for a
// single direct hop, 10s per hop for multi-hop routes.
func CalculateRouteTime(route Route) uint64 {
	switch len(route.Hops) {
	case 0:
		return 0
	case 1:
		return 6
	default:
		return uint64(len(route.Hops)) * 10
	}
}

// forwardHop is one nested Packet-Forward-Middleware instruction.
type forwardHop struct {
	Receiver string      `json:"receiver"`
	Port     string      `json:"port"`
	Channel  string      `json:"channel"`
	Retries  int         `json:"retries"`
	Timeout  string      `json:"timeout"`
	Next     *forwardMsg `json:"next,omitempty"`
}

type forwardMsg struct {
	Forward forwardHop `json:"forward"`
}

// BuildPFMMemo converts a route's hops into the nested forward-memo
// JSON the Packet Forward Middleware interprets: each intermediate hop
// names its receiver as the next hop's chain identifier, the terminal
// hop names finalReceiver, and the whole structure attaches to the
// first transfer — spec.md §4.J.
func BuildPFMMemo(hops []Hop, finalReceiver string) (string, error) {
	if len(hops) == 0 {
		return "", nil
	}
	msg := buildNestedForward(hops, finalReceiver, 0)
	b, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func buildNestedForward(hops []Hop, finalReceiver string, index int) *forwardMsg {
	if index >= len(hops) {
		return nil
	}
	hop := hops[index]
	isLast := index == len(hops)-1

	receiver := hop.ChainID
	if isLast {
		receiver = finalReceiver
	}

	fh := forwardHop{
		Receiver: receiver,
		Port:     hop.PortID,
		Channel:  hop.ChannelID,
		Retries:  2,
		Timeout:  "10m",
	}
	if !isLast {
		fh.Next = buildNestedForward(hops, finalReceiver, index+1)
	}
	return &forwardMsg{Forward: fh}
}
