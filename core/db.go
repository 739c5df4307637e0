package core

// DBOrdering is a single ORDER BY term, bound from the `ordering` query
// parameter by the API layer and rendered into SQL by the repositories.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
