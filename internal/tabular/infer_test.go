package tabular

import "testing"

func TestInferKind(t *testing.T) {
	cases := []struct {
		name   string
		values []string
		want   Kind
	}{
		{"integers with nulls", []string{"1", "", "42", "NaN"}, KindInteger},
		{"reals", []string{"1", "2.5", "-3e2"}, KindReal},
		{"dates", []string{"2024-08-10", "2024-08-12", ""}, KindDatetime},
		{"mixed text", []string{"1", "two"}, KindText},
		{"all null", []string{"", "null", "N/A"}, KindText},
		{"categories", []string{"Open", "Closed"}, KindText},
		{"infinity is text", []string{"1.5", "inf"}, KindText},
		{"spelled infinity is text", []string{"2", "-Infinity"}, KindText},
		{"upper nan is text", []string{"0.5", "NAN"}, KindText},
	}
	for _, c := range cases {
		if got := InferKind(c.values); got != c.want {
			t.Errorf("%s: InferKind = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestConvert(t *testing.T) {
	if v := Convert(KindInteger, " 7 "); v != int64(7) {
		t.Fatalf("expected int64 7, got %#v", v)
	}
	if v := Convert(KindReal, "2.5"); v != 2.5 {
		t.Fatalf("expected 2.5, got %#v", v)
	}
	if v := Convert(KindText, "Near-Miss"); v != "Near-Miss" {
		t.Fatalf("expected text, got %#v", v)
	}
	if v := Convert(KindDatetime, "2024-08-10"); v != "2024-08-10" {
		t.Fatalf("datetimes keep their source text, got %#v", v)
	}
	if v := Convert(KindReal, "+Inf"); v != "+Inf" {
		t.Fatalf("non-finite reals keep their source text, got %#v", v)
	}
	if v := Convert(KindReal, "1e999"); v != "1e999" {
		t.Fatalf("overflowing reals keep their source text, got %#v", v)
	}
	if v := Convert(KindInteger, "NULL"); v != nil {
		t.Fatalf("expected nil for null token, got %#v", v)
	}
}

func TestKindSQLType(t *testing.T) {
	want := map[Kind]string{KindText: "TEXT", KindInteger: "INTEGER", KindReal: "REAL", KindDatetime: "TEXT"}
	for k, sqlType := range want {
		if got := k.SQLType(); got != sqlType {
			t.Errorf("%v.SQLType() = %q, want %q", k, got, sqlType)
		}
	}
}
