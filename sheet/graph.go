package sheet

// depNode tracks the dependency edges of one formula cell
type depNode struct {
	precedents map[CellAddr]struct{}  // cells this cell reads
	dependents map[CellAddr]struct{}  // cells that read this cell
	ranges     map[RangeAddr]struct{} // ranges this cell reads
}

// DependencyGraph tracks which cells feed which formulas so Calculate
// can recompute only what changed. Range reads are tracked separately
// from cell reads: a write anywhere inside an observed range dirties
// the range's observers.
type DependencyGraph struct {
	nodes          map[CellAddr]*depNode
	rangeObservers map[RangeAddr]map[CellAddr]struct{}
	dirtySet       map[CellAddr]struct{}
	volatileCells  map[CellAddr]struct{}
}

// NewDependencyGraph creates an empty dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:          make(map[CellAddr]*depNode),
		rangeObservers: make(map[RangeAddr]map[CellAddr]struct{}),
		dirtySet:       make(map[CellAddr]struct{}),
		volatileCells:  make(map[CellAddr]struct{}),
	}
}

func (dg *DependencyGraph) getOrCreate(addr CellAddr) *depNode {
	if node, exists := dg.nodes[addr]; exists {
		return node
	}
	node := &depNode{
		precedents: make(map[CellAddr]struct{}),
		dependents: make(map[CellAddr]struct{}),
		ranges:     make(map[RangeAddr]struct{}),
	}
	dg.nodes[addr] = node
	return node
}

// cleanupIfEmpty drops a node once nothing references it
func (dg *DependencyGraph) cleanupIfEmpty(addr CellAddr) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}
	if len(node.precedents) > 0 || len(node.dependents) > 0 || len(node.ranges) > 0 {
		return
	}
	delete(dg.nodes, addr)
}

// AddCellDependency records that from reads to
func (dg *DependencyGraph) AddCellDependency(from, to CellAddr) {
	dg.getOrCreate(from).precedents[to] = struct{}{}
	dg.getOrCreate(to).dependents[from] = struct{}{}
}

// AddRangeDependency records that from reads every cell in rangeAddr
func (dg *DependencyGraph) AddRangeDependency(from CellAddr, rangeAddr RangeAddr) {
	dg.getOrCreate(from).ranges[rangeAddr] = struct{}{}

	if dg.rangeObservers[rangeAddr] == nil {
		dg.rangeObservers[rangeAddr] = make(map[CellAddr]struct{})
	}
	dg.rangeObservers[rangeAddr][from] = struct{}{}
}

// ClearDependencies drops all precedent edges of a cell, keeping its
// dependents intact. called before re-registering a rewritten formula.
func (dg *DependencyGraph) ClearDependencies(addr CellAddr) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}

	for precedent := range node.precedents {
		if precedentNode, ok := dg.nodes[precedent]; ok {
			delete(precedentNode.dependents, addr)
			dg.cleanupIfEmpty(precedent)
		}
	}
	node.precedents = make(map[CellAddr]struct{})

	for rangeAddr := range node.ranges {
		if observers, ok := dg.rangeObservers[rangeAddr]; ok {
			delete(observers, addr)
			if len(observers) == 0 {
				delete(dg.rangeObservers, rangeAddr)
			}
		}
	}
	node.ranges = make(map[RangeAddr]struct{})

	dg.cleanupIfEmpty(addr)
}

// RemoveNode removes a cell and all edges touching it
func (dg *DependencyGraph) RemoveNode(addr CellAddr) {
	dg.ClearDependencies(addr)

	if node, exists := dg.nodes[addr]; exists {
		for dependent := range node.dependents {
			if dependentNode, ok := dg.nodes[dependent]; ok {
				delete(dependentNode.precedents, addr)
			}
		}
		delete(dg.nodes, addr)
	}

	delete(dg.dirtySet, addr)
	delete(dg.volatileCells, addr)
}

// MarkDirty marks a cell as needing recalculation
func (dg *DependencyGraph) MarkDirty(addr CellAddr) {
	dg.dirtySet[addr] = struct{}{}
}

// MarkDependentsDirty dirties everything downstream of addr: direct
// and transitive dependents, plus observers of any range covering it.
func (dg *DependencyGraph) MarkDependentsDirty(addr CellAddr) {
	visited := make(map[CellAddr]struct{})
	dg.spreadDirty(addr, visited)
}

func (dg *DependencyGraph) spreadDirty(addr CellAddr, visited map[CellAddr]struct{}) {
	if _, seen := visited[addr]; seen {
		return
	}
	visited[addr] = struct{}{}

	if node, exists := dg.nodes[addr]; exists {
		for dependent := range node.dependents {
			dg.MarkDirty(dependent)
			dg.spreadDirty(dependent, visited)
		}
	}

	for rangeAddr, observers := range dg.rangeObservers {
		if rangeAddr.Contains(addr) {
			for observer := range observers {
				if _, seen := visited[observer]; !seen {
					dg.MarkDirty(observer)
					dg.spreadDirty(observer, visited)
				}
			}
		}
	}
}

// ClearDirty clears the dirty flag for a cell
func (dg *DependencyGraph) ClearDirty(addr CellAddr) {
	delete(dg.dirtySet, addr)
}

// IsDirty reports whether a cell is queued for recalculation
func (dg *DependencyGraph) IsDirty(addr CellAddr) bool {
	_, dirty := dg.dirtySet[addr]
	return dirty
}

// DirtyCells returns the cells currently needing recalculation
func (dg *DependencyGraph) DirtyCells() []CellAddr {
	result := make([]CellAddr, 0, len(dg.dirtySet))
	for addr := range dg.dirtySet {
		result = append(result, addr)
	}
	return result
}

// Precedents returns the cells addr directly reads
func (dg *DependencyGraph) Precedents(addr CellAddr) []CellAddr {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}
	result := make([]CellAddr, 0, len(node.precedents))
	for precedent := range node.precedents {
		result = append(result, precedent)
	}
	return result
}

// Dependents returns the cells that directly read addr
func (dg *DependencyGraph) Dependents(addr CellAddr) []CellAddr {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}
	result := make([]CellAddr, 0, len(node.dependents))
	for dependent := range node.dependents {
		result = append(result, dependent)
	}
	return result
}

// RangePrecedents returns the ranges addr directly reads
func (dg *DependencyGraph) RangePrecedents(addr CellAddr) []RangeAddr {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}
	result := make([]RangeAddr, 0, len(node.ranges))
	for rangeAddr := range node.ranges {
		result = append(result, rangeAddr)
	}
	return result
}

// MarkVolatile marks a cell as containing volatile functions
func (dg *DependencyGraph) MarkVolatile(addr CellAddr) {
	dg.volatileCells[addr] = struct{}{}
}

// UnmarkVolatile removes the volatile marking from a cell
func (dg *DependencyGraph) UnmarkVolatile(addr CellAddr) {
	delete(dg.volatileCells, addr)
}

// MarkAllVolatileDirty queues every volatile cell for recalculation
func (dg *DependencyGraph) MarkAllVolatileDirty() {
	for addr := range dg.volatileCells {
		dg.MarkDirty(addr)
	}
}

// NodeCount returns the number of tracked cells
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.nodes)
}

// Clear drops all edges and tracking state
func (dg *DependencyGraph) Clear() {
	dg.nodes = make(map[CellAddr]*depNode)
	dg.rangeObservers = make(map[RangeAddr]map[CellAddr]struct{})
	dg.dirtySet = make(map[CellAddr]struct{})
	dg.volatileCells = make(map[CellAddr]struct{})
}
