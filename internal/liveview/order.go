package liveview

import "sort"

// Direction is the sort direction of an OrderSpec.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// NullOrder is the placement policy for null or missing values.
type NullOrder int

const (
	NullsLast NullOrder = iota
	NullsFirst
)

// OrderSpec describes how a view orders its rows: one field, a direction,
// and where nulls land. Ties between equal non-null values keep their
// relative order (the sort is stable).
type OrderSpec struct {
	Field     string
	Direction Direction
	Nulls     NullOrder
}

// Less reports whether row a sorts strictly before row b.
func (o OrderSpec) Less(a, b Row) bool {
	av, aok := a[o.Field]
	bv, bok := b[o.Field]
	aNull := !aok || av == nil
	bNull := !bok || bv == nil

	if aNull || bNull {
		if aNull == bNull {
			return false
		}
		if o.Nulls == NullsFirst {
			return aNull
		}
		return bNull
	}

	c, ok := compareValues(av, bv)
	if !ok {
		return false
	}
	if o.Direction == Descending {
		return c > 0
	}
	return c < 0
}

// sortRows orders rows in place. A nil order preserves the existing
// order.
func sortRows(rows []Row, order *OrderSpec) {
	if order == nil {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return order.Less(rows[i], rows[j])
	})
}
