package eval

import "strings"

// RegisterTable maps register names to gdb's register numbers. gdb numbers
// registers by position in -data-list-register-names, including empty names for
// unused slots, so positions are kept as-is.
type RegisterTable struct {
	names []string
	index map[string]int
}

// NewRegisterTable builds a table from the ordered name list
func NewRegisterTable(names []string) *RegisterTable {
	t := &RegisterTable{
		names: append([]string(nil), names...),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			continue
		}
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}
	return t
}

// Lookup returns the register number for name. A leading $ is accepted.
func (t *RegisterTable) Lookup(name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	i, ok := t.index[strings.TrimPrefix(name, "$")]
	return i, ok
}

// Names returns the non-empty register names in register-number order
func (t *RegisterTable) Names() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.index))
	for _, name := range t.names {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Len returns the number of register slots, holes included
func (t *RegisterTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}
