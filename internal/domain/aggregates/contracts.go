package aggregates

// Contract describes the rows an aggregate write touches. Writers that share tables must
// take row locks in LockOrder so concurrent notifications cannot deadlock each other.
type Contract struct {
	Name string
	// Tables are written only inside the aggregate's own transaction.
	Tables []string
	// LockOrder lists the row locks a write takes, outermost first.
	LockOrder []string
}

// Aggregate is implemented by every write aggregate.
type Aggregate interface {
	Contract() Contract
}

// Writes reports whether the aggregate owns writes to table.
func (c Contract) Writes(table string) bool {
	for _, t := range c.Tables {
		if t == table {
			return true
		}
	}
	return false
}
