package canonjson

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"sorted keys", `{"b":1,"a":{"d":true,"c":null}}`, `{"a":{"c":null,"d":true},"b":1}`},
		{"whitespace", "{ \"a\" : [ 1 , 2 ] }", `{"a":[1,2]}`},
		{"no html escaping", `{"k":"<a&b>"}`, `{"k":"<a&b>"}`},
		{"control chars", `"tab\there\u0001"`, `"tab\there\u0001"`},
		{"unicode kept", `"Hợp đồng thuê nhà"`, `"Hợp đồng thuê nhà"`},
		{"integer float", `1.0`, `1`},
		{"fraction", `0.5`, `0.5`},
		{"small", `0.000001`, `0.000001`},
		{"tiny", `0.0000001`, `1e-7`},
		{"large", `1e21`, `1e+21`},
		{"below exponent threshold", `123456789012345678901`, `123456789012345680000`},
		{"negative", `-12.25`, `-12.25`},
		{"negative zero", `-0`, `0`},
		{"non-bmp key order", `{"\uffff":2,"\ud83d\ude00":1}`, "{\"\U0001F600\":1,\"\uFFFF\":2}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Canonicalize([]byte(tc.in))
			if err != nil {
				t.Fatalf("canonicalize: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestCanonicalizeRejectsTrailingData(t *testing.T) {
	if _, err := Canonicalize([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
	if _, err := Canonicalize([]byte(`{"a":`)); err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestMarshalStructsAndMaps(t *testing.T) {
	type payload struct {
		Outcome string `json:"outcome"`
		Actor   string `json:"actor_id,omitempty"`
		Seq     int    `json:"seq"`
	}
	got, err := Marshal(payload{Outcome: "VALID", Seq: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(got) != `{"outcome":"VALID","seq":3}` {
		t.Fatalf("unexpected %s", got)
	}

	fromMap, err := Marshal(map[string]any{"seq": 3, "outcome": "VALID"})
	if err != nil {
		t.Fatalf("marshal map: %v", err)
	}
	if string(fromMap) != string(got) {
		t.Fatalf("map and struct encodings differ: %s vs %s", fromMap, got)
	}
}

func TestMarshalRejectsNaN(t *testing.T) {
	if _, err := Marshal(map[string]any{"x": math.NaN()}); err == nil {
		t.Fatal("expected NaN to be rejected")
	}
	var buf bytes.Buffer
	if err := writeNumber(&buf, math.Inf(1)); !errors.Is(err, ErrInvalidNumber) {
		t.Fatalf("expected ErrInvalidNumber, got %v", err)
	}
}
