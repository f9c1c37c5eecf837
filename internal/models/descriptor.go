package models

// Discipline selects the encryption discipline for a declared field.
type Discipline string

const (
	// DisciplineRandomized uses a fresh nonce per write. Equal plaintexts
	// never produce equal ciphertexts. Default for content fields.
	DisciplineRandomized Discipline = "randomized"
	// DisciplineDeterministic derives the nonce from the plaintext so equal
	// plaintexts encrypt identically. Required for exact-match lookup fields
	// such as email.
	DisciplineDeterministic Discipline = "deterministic"
)

// Descriptor is the static per-entity-type declaration of storage behavior:
// table name, ordered natural-key fields (JSON names), which fields get
// encrypted and how, and which fields are PII-redacted before persistence.
type Descriptor struct {
	Table       string
	NaturalKeys []string
	Encrypted   map[string]Discipline
	Redacted    []string
}

// registry holds one descriptor per table. Resolved at startup, never at
// runtime via reflection.
var registry = map[string]Descriptor{
	TableSession: {
		Table:     TableSession,
		Encrypted: map[string]Discipline{"description": DisciplineRandomized},
	},
	TableMessage: {
		Table:     TableMessage,
		Encrypted: map[string]Discipline{"content": DisciplineRandomized},
		Redacted:  []string{"content"},
	},
	TableMoment: {
		Table:       TableMoment,
		NaturalKeys: []string{"name"},
		Encrypted:   map[string]Discipline{"summary": DisciplineRandomized},
	},
	TableTenant: {
		Table: TableTenant,
	},
	TableUser: {
		Table:       TableUser,
		NaturalKeys: []string{"email"},
		Encrypted:   map[string]Discipline{"email": DisciplineDeterministic},
	},
}

// DescriptorFor returns the descriptor registered for a table.
func DescriptorFor(table string) (Descriptor, bool) {
	d, ok := registry[table]
	return d, ok
}

// Tables returns all registered table names.
func Tables() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}
