package liveview

import "testing"

func TestFilterSpecMatches(t *testing.T) {
	row := Row{
		"id":       int64(7),
		"status":   "open",
		"priority": 3,
		"name":     "Dermal Fillers",
		"archived": false,
		"notes":    nil,
	}

	tests := []struct {
		name string
		spec FilterSpec
		want bool
	}{
		{"empty spec matches", FilterSpec{}, true},
		{"eq string", FilterSpec{{Field: "status", Op: OpEq, Operand: "open"}}, true},
		{"eq string miss", FilterSpec{{Field: "status", Op: OpEq, Operand: "closed"}}, false},
		{"eq cross numeric types", FilterSpec{{Field: "id", Op: OpEq, Operand: float64(7)}}, true},
		{"neq", FilterSpec{{Field: "status", Op: OpNeq, Operand: "closed"}}, true},
		{"gt", FilterSpec{{Field: "priority", Op: OpGt, Operand: 2}}, true},
		{"gte boundary", FilterSpec{{Field: "priority", Op: OpGte, Operand: 3}}, true},
		{"lt miss", FilterSpec{{Field: "priority", Op: OpLt, Operand: 3}}, false},
		{"lte boundary", FilterSpec{{Field: "priority", Op: OpLte, Operand: 3}}, true},
		{"like wildcard", FilterSpec{{Field: "name", Op: OpLike, Operand: "Dermal%"}}, true},
		{"like is case sensitive", FilterSpec{{Field: "name", Op: OpLike, Operand: "dermal%"}}, false},
		{"ilike folds case", FilterSpec{{Field: "name", Op: OpILike, Operand: "dermal%"}}, true},
		{"like underscore", FilterSpec{{Field: "status", Op: OpLike, Operand: "o_en"}}, true},
		{"is null", FilterSpec{{Field: "notes", Op: OpIs, Operand: nil}}, true},
		{"is false", FilterSpec{{Field: "archived", Op: OpIs, Operand: false}}, true},
		{"is true miss", FilterSpec{{Field: "archived", Op: OpIs, Operand: true}}, false},
		{"in hit", FilterSpec{{Field: "status", Op: OpIn, Operand: []string{"open", "pending"}}}, true},
		{"in miss", FilterSpec{{Field: "status", Op: OpIn, Operand: []string{"closed"}}}, false},
		{"conditions are ANDed", FilterSpec{
			{Field: "status", Op: OpEq, Operand: "open"},
			{Field: "priority", Op: OpGt, Operand: 5},
		}, false},
		{"missing field never matches eq", FilterSpec{{Field: "ghost", Op: OpEq, Operand: "x"}}, false},
		{"comparison against null is false", FilterSpec{{Field: "notes", Op: OpGt, Operand: 1}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.Matches(row); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterSpecValidate(t *testing.T) {
	valid := FilterSpec{{Field: "status", Op: OpEq, Operand: "open"}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}

	unknown := FilterSpec{{Field: "status", Op: Op(99), Operand: "open"}}
	if err := unknown.Validate(); err == nil {
		t.Fatal("expected error for unknown operator")
	}

	empty := FilterSpec{{Field: "", Op: OpEq, Operand: "open"}}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected error for empty field")
	}
}

func TestLikePatternIsAnchored(t *testing.T) {
	row := Row{"name": "botox touch-up"}
	if (FilterSpec{{Field: "name", Op: OpLike, Operand: "botox"}}).Matches(row) {
		t.Error("bare pattern should not match as substring")
	}
	if !(FilterSpec{{Field: "name", Op: OpLike, Operand: "%touch-up"}}).Matches(row) {
		t.Error("suffix pattern should match")
	}
}
