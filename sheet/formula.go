package sheet

import "github.com/segmentio/fasthash/fnv1a"

// formulaEntry is one interned formula. key is the canonical AST text,
// kept alongside the node so fingerprint collisions are detected by a
// full-text comparison instead of silently aliasing formulas.
type formulaEntry struct {
	key  string
	node Node
	refs int
}

// FormulaCache deduplicates parsed formulas. Two formulas with the
// same structure (ignoring whitespace and the leading =) share one
// AST: a column of ten thousand identical SUM formulas parses once.
// Buckets are keyed by the fnv1a fingerprint of the canonical text.
type FormulaCache struct {
	buckets map[uint64][]*formulaEntry
	count   int
}

// NewFormulaCache creates an empty formula cache
func NewFormulaCache() *FormulaCache {
	return &FormulaCache{
		buckets: make(map[uint64][]*formulaEntry),
	}
}

// Intern parses source and returns the shared AST, reusing an existing
// entry when an equivalent formula was interned before
func (fc *FormulaCache) Intern(source string) (Node, *SyntaxError) {
	node, err := Parse(source)
	if err != nil {
		return nil, err
	}

	key := node.String()
	fingerprint := fnv1a.HashString64(key)

	for _, entry := range fc.buckets[fingerprint] {
		if entry.key == key {
			entry.refs++
			return entry.node, nil
		}
	}

	fc.buckets[fingerprint] = append(fc.buckets[fingerprint], &formulaEntry{
		key:  key,
		node: node,
		refs: 1,
	})
	fc.count++
	return node, nil
}

// Release decrements the reference count of a previously interned
// formula, dropping the entry when nothing uses it anymore
func (fc *FormulaCache) Release(node Node) {
	if node == nil {
		return
	}

	key := node.String()
	fingerprint := fnv1a.HashString64(key)

	bucket := fc.buckets[fingerprint]
	for i, entry := range bucket {
		if entry.key != key {
			continue
		}
		entry.refs--
		if entry.refs > 0 {
			return
		}

		bucket[i] = bucket[len(bucket)-1]
		bucket = bucket[:len(bucket)-1]
		if len(bucket) == 0 {
			delete(fc.buckets, fingerprint)
		} else {
			fc.buckets[fingerprint] = bucket
		}
		fc.count--
		return
	}
}

// Refs returns the reference count of an interned formula, 0 when the
// formula is not cached
func (fc *FormulaCache) Refs(node Node) int {
	if node == nil {
		return 0
	}
	key := node.String()
	for _, entry := range fc.buckets[fnv1a.HashString64(key)] {
		if entry.key == key {
			return entry.refs
		}
	}
	return 0
}

// Count returns the number of unique formulas held
func (fc *FormulaCache) Count() int {
	return fc.count
}

// Clear removes all cached formulas
func (fc *FormulaCache) Clear() {
	fc.buckets = make(map[uint64][]*formulaEntry)
	fc.count = 0
}
