package xlsx

// ssEntry is one interned shared string with its reference count
type ssEntry struct {
	text string
	refs int
}

// SharedStrings is the workbook-wide string interning table. Cells
// store indexes into it; identical text across a workbook is held
// once. Reference counts feed the count attribute of sharedStrings.xml,
// which records total string usages rather than unique strings.
type SharedStrings struct {
	ids     map[string]int
	entries []ssEntry
}

// NewSharedStrings creates an empty shared string table
func NewSharedStrings() *SharedStrings {
	return &SharedStrings{
		ids: make(map[string]int),
	}
}

// Intern adds a string to the table, or increments its reference count
// if it is already present, and returns its index
func (ss *SharedStrings) Intern(text string) int {
	if id, exists := ss.ids[text]; exists {
		ss.entries[id].refs++
		return id
	}

	id := len(ss.entries)
	ss.ids[text] = id
	ss.entries = append(ss.entries, ssEntry{text: text, refs: 1})
	return id
}

// String retrieves a string by its index
func (ss *SharedStrings) String(id int) (string, bool) {
	if id < 0 || id >= len(ss.entries) {
		return "", false
	}
	return ss.entries[id].text, true
}

// Contains reports whether text is interned and returns its index
func (ss *SharedStrings) Contains(text string) (int, bool) {
	id, exists := ss.ids[text]
	return id, exists
}

// Refs returns the reference count of an interned string
func (ss *SharedStrings) Refs(id int) int {
	if id < 0 || id >= len(ss.entries) {
		return 0
	}
	return ss.entries[id].refs
}

// Count returns the number of unique strings held
func (ss *SharedStrings) Count() int {
	return len(ss.entries)
}

// TotalRefs returns the total number of string usages across the table
func (ss *SharedStrings) TotalRefs() int {
	total := 0
	for _, entry := range ss.entries {
		total += entry.refs
	}
	return total
}

// Each calls fn for every interned string in index order
func (ss *SharedStrings) Each(fn func(id int, text string)) {
	for id, entry := range ss.entries {
		fn(id, entry.text)
	}
}

// Clear removes all strings from the table
func (ss *SharedStrings) Clear() {
	ss.ids = make(map[string]int)
	ss.entries = nil
}
