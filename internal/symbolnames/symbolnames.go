// symbolnames.go — optional display-name lookup for symbol IDs.
//
// A symbol_id never needs a name to be correct anywhere on the wire or
// in SymbolCache; a name is only ever useful in log lines and
// diagnostics output, so it lives behind this small collaborator
// instead of inside the protocol itself.
package symbolnames

import "fmt"

// Name returns names[id] if present, else a synthetic "SYM###" label.
// names may be nil or shorter than id; both are treated as "no name".
func Name(id uint16, names []string) string {
	if int(id) < len(names) && names[id] != "" {
		return names[id]
	}
	return fmt.Sprintf("SYM%03d", id)
}
