// Copyright (C) 2021  Antonio Lassandro

// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public License for
// more details.

// You should have received a copy of the GNU General Public License along
// with this program.  If not, see <http://www.gnu.org/licenses/>.

package assembler

// SymbolTable binds labels to addresses in declaration order.
type SymbolTable struct {
	index   map[string]int
	symbols []Symbol
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{index: make(map[string]int)}
}

// Define binds label to addr. A redeclaration keeps the first binding and
// returns a *RedeclaredLabelError.
func (st *SymbolTable) Define(label string, addr uint32, pos Cursor) error {
	if i, exists := st.index[label]; exists {
		return &RedeclaredLabelError{pos, label, st.symbols[i].Addr}
	}

	st.index[label] = len(st.symbols)
	st.symbols = append(st.symbols, Symbol{label, addr, pos})

	return nil
}

func (st *SymbolTable) Lookup(label string) (uint32, bool) {
	if i, exists := st.index[label]; exists {
		return st.symbols[i].Addr, true
	}

	return 0, false
}

func (st *SymbolTable) Len() int {
	return len(st.symbols)
}

func (st *SymbolTable) Symbols() []Symbol {
	result := make([]Symbol, len(st.symbols))
	copy(result, st.symbols)
	return result
}

// PendingTable records jumps emitted before their label was declared, grouped
// by label in order of first use.
type PendingTable struct {
	index map[string]int
	refs  []PendingRef
}

func NewPendingTable() *PendingTable {
	return &PendingTable{index: make(map[string]int)}
}

func (pt *PendingTable) Record(label string, occurrence Occurrence) {
	i, exists := pt.index[label]

	if !exists {
		i = len(pt.refs)
		pt.index[label] = i
		pt.refs = append(pt.refs, PendingRef{Label: label})
	}

	pt.refs[i].Occurrences = append(pt.refs[i].Occurrences, occurrence)
}

func (pt *PendingTable) Len() int {
	return len(pt.refs)
}

func (pt *PendingTable) References() []PendingRef {
	result := make([]PendingRef, len(pt.refs))

	for i, ref := range pt.refs {
		result[i].Label = ref.Label
		result[i].Occurrences = make([]Occurrence, len(ref.Occurrences))
		copy(result[i].Occurrences, ref.Occurrences)
	}

	return result
}
