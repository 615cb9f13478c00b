package model

// Fold is one train/validation partition of the dataset's row indices.
// The same folds are applied to every subset within an exploration run so
// that scores stay comparable.
type Fold struct {
	ID         string `json:"id"`
	Train      []int  `json:"train"`
	Validation []int  `json:"validation"`
}

// IsFull reports whether this is the full-fit fold: all rows in train and
// nothing held out. Full-fit folds produce final coefficients, not scores.
func (f Fold) IsFull() bool { return len(f.Validation) == 0 }
