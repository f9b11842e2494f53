package units

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeMass(t *testing.T) {
	got, err := Normalize(decimal.NewFromInt(2), "t", "kg")
	if err != nil {
		t.Fatalf("normalize returned error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("expected 2000, got %s", got)
	}
}

func TestNormalizeAliases(t *testing.T) {
	got, err := Normalize(decimal.NewFromInt(3), "tonnes", "kg")
	if err != nil {
		t.Fatalf("normalize returned error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("expected 3000, got %s", got)
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"kg", "t"},
		{"g", "kg"},
		{"l", "m3"},
		{"kwh", "mwh"},
		{"wh", "gwh"},
	}
	value := decimal.RequireFromString("123.456")

	for _, pair := range pairs {
		forward, err := Normalize(value, pair[0], pair[1])
		if err != nil {
			t.Fatalf("%s -> %s: %v", pair[0], pair[1], err)
		}
		back, err := Normalize(forward, pair[1], pair[0])
		if err != nil {
			t.Fatalf("%s -> %s: %v", pair[1], pair[0], err)
		}
		if !back.Equal(value) {
			t.Errorf("round trip %s <-> %s: got %s, want %s", pair[0], pair[1], back, value)
		}
	}
}

func TestNormalizeCrossFamilyFails(t *testing.T) {
	_, err := Normalize(decimal.NewFromInt(1), "kg", "m3")
	var unsupported *UnsupportedUnitError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedUnitError, got %v", err)
	}
}

func TestNormalizeUnknownUnit(t *testing.T) {
	_, err := Normalize(decimal.NewFromInt(1), "parsec", "kg")
	var unsupported *UnsupportedUnitError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedUnitError, got %v", err)
	}
	if unsupported.Unit != "parsec" {
		t.Fatalf("expected offending unit in error, got %q", unsupported.Unit)
	}
}

func TestFamilyOf(t *testing.T) {
	family, ok := FamilyOf("tonnes")
	if !ok || family != FamilyMass {
		t.Fatalf("expected mass family for tonnes, got %s ok=%v", family, ok)
	}
	if _, ok := FamilyOf("unknown"); ok {
		t.Fatal("unknown unit should not resolve a family")
	}
}
