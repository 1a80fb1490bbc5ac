package main

import "testing"

func TestParseValue(t *testing.T) {
	tests := []struct {
		input string
		want  any
	}{
		{"42", 42},
		{"-7", -7},
		{"2.5", 2.5},
		{"true", true},
		{"false", false},
		{"True", "True"},
		{"hello", "hello"},
		{`"42"`, "42"},
		{`""`, ""},
		{"x", "x"},
	}
	for _, tc := range tests {
		if got := parseValue(tc.input); got != tc.want {
			t.Errorf("parseValue(%q) = %#v, want %#v", tc.input, got, tc.want)
		}
	}
}
