package domain

import "fmt"

// IDRange is a half-open interval [Start, End) over entity identifiers.
type IDRange struct {
	Start int64
	End   int64
}

// Contains reports whether id falls inside the range.
func (r IDRange) Contains(id int64) bool {
	return id >= r.Start && id < r.End
}

func (r IDRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}
