package entitystore

import (
	"database/sql/driver"

	"github.com/pgvector/pgvector-go"
)

// NullVector is a nullable pgvector.Vector: grant and profile embeddings
// are legitimately absent until generation succeeds (spec §3).
type NullVector struct {
	Vector pgvector.Vector
	Valid  bool
}

// NewNullVector wraps v. A nil slice yields an invalid (SQL NULL) vector.
func NewNullVector(v []float32) NullVector {
	if v == nil {
		return NullVector{}
	}
	return NullVector{Vector: pgvector.NewVector(v), Valid: true}
}

// Slice returns the underlying []float32, or nil if not Valid.
func (n NullVector) Slice() []float32 {
	if !n.Valid {
		return nil
	}
	return n.Vector.Slice()
}

func (n *NullVector) Scan(src any) error {
	if src == nil {
		n.Valid, n.Vector = false, pgvector.Vector{}
		return nil
	}
	if err := n.Vector.Scan(src); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

func (n NullVector) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Vector.Value()
}
