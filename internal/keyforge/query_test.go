package keyforge

import "testing"

func TestParseQueryResultShapes(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		shape QueryShape
		rows  int
	}{
		{name: "empty body", body: ``, shape: ShapeEmpty, rows: 0},
		{name: "null", body: `null`, shape: ShapeEmpty, rows: 0},
		{name: "array", body: `[{"a":1},{"a":2}]`, shape: ShapeRows, rows: 2},
		{name: "resultSet", body: `{"resultSet":[{"a":1}]}`, shape: ShapeResultSet, rows: 1},
		{name: "data", body: `{"data":[{"a":1},{"a":2},{"a":3}]}`, shape: ShapeData, rows: 3},
		{name: "results", body: `{"results":[]}`, shape: ShapeResults, rows: 0},
		{name: "single object", body: `{"a":1,"b":"x"}`, shape: ShapeObject, rows: 1},
		{name: "empty object", body: `{}`, shape: ShapeEmpty, rows: 0},
		{name: "scalar", body: `42`, shape: ShapeEmpty, rows: 0},
		{name: "resultSet not array", body: `{"resultSet":"oops"}`, shape: ShapeObject, rows: 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			res, err := ParseQueryResult([]byte(tc.body))
			if err != nil {
				t.Fatalf("ParseQueryResult error: %v", err)
			}
			if res.Shape != tc.shape {
				t.Fatalf("Shape = %q, want %q", res.Shape, tc.shape)
			}
			if res.Len() != tc.rows {
				t.Fatalf("Len = %d, want %d", res.Len(), tc.rows)
			}
		})
	}
}

func TestParseQueryResultRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseQueryResult([]byte(`{"data":[`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestQueryResultColumnAndScalars(t *testing.T) {
	res, err := ParseQueryResult([]byte(`{"data":[{"name":"A"},{"name":""},{"other":1},{"name":"C"}]}`))
	if err != nil {
		t.Fatalf("ParseQueryResult error: %v", err)
	}
	got := res.Column("name")
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("Column = %v, want [A C]", got)
	}

	scalars, err := ParseQueryResult([]byte(`["X","Y",null]`))
	if err != nil {
		t.Fatalf("ParseQueryResult error: %v", err)
	}
	if vals := scalars.Column("value"); len(vals) != 2 || vals[0] != "X" {
		t.Fatalf("scalar Column = %v", vals)
	}
}

func TestQueryResultColumnFallsBackToCaseInsensitiveMatch(t *testing.T) {
	res, err := ParseQueryResult([]byte(`[{"NAME":"Admin"},{"Name":"Viewer"}]`))
	if err != nil {
		t.Fatalf("ParseQueryResult error: %v", err)
	}
	got := res.Column("name")
	if len(got) != 2 || got[0] != "Admin" || got[1] != "Viewer" {
		t.Fatalf("Column = %v", got)
	}
}

func TestQueryResultColumnsKeepFirstSeenOrder(t *testing.T) {
	res, err := ParseQueryResult([]byte(`{"resultSet":[{"zeta":1,"alpha":2},{"alpha":3,"mid":4}]}`))
	if err != nil {
		t.Fatalf("ParseQueryResult error: %v", err)
	}
	got := res.Columns()
	want := []string{"zeta", "alpha", "mid"}
	if len(got) != len(want) {
		t.Fatalf("Columns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Columns = %v, want %v", got, want)
		}
	}
}
