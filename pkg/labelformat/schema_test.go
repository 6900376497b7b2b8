package labelformat

import (
	"testing"
	"time"
)

func validLabel() *Label {
	prep := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	exp := prep.Add(72 * time.Hour)
	return &Label{
		Version:      CurrentVersion,
		ProductName:  "Hollandaise",
		CategoryName: "Sauces",
		Allergens:    []string{"Egg", "Dairy"},
		PreparedBy:   "M. Garcia",
		PreparedAt:   &prep,
		ExpiresAt:    &exp,
		Quantity:     1.5,
		Unit:         "L",
	}
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validLabel()); err != nil {
		t.Fatalf("expected valid label, got: %v", err)
	}
}

func TestValidate_MissingProductName(t *testing.T) {
	l := validLabel()
	l.ProductName = "  "
	if err := Validate(l); err == nil {
		t.Error("expected error for missing productName")
	}
}

func TestValidate_BadVersion(t *testing.T) {
	l := validLabel()
	l.Version = "2.0"
	if err := Validate(l); err == nil {
		t.Error("expected error for unsupported version")
	}
}

func TestValidate_QuantityWithoutUnit(t *testing.T) {
	l := validLabel()
	l.Unit = ""
	if err := Validate(l); err == nil {
		t.Error("expected error for quantity without unit")
	}
}

func TestValidate_DuplicateAllergen(t *testing.T) {
	l := validLabel()
	l.Allergens = []string{"Egg", "egg"}
	if err := Validate(l); err == nil {
		t.Error("expected error for duplicate allergen")
	}
}

func TestValidate_ExpiryBeforePrep(t *testing.T) {
	l := validLabel()
	exp := l.PreparedAt.Add(-time.Hour)
	l.ExpiresAt = &exp
	if err := Validate(l); err == nil {
		t.Error("expected error for expiry before prep time")
	}
}

func TestParse_DefaultsVersion(t *testing.T) {
	data := []byte(`{"productName": "Diced Onion"}`)

	l, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if l.Version != CurrentVersion {
		t.Errorf("expected version %s, got %s", CurrentVersion, l.Version)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte(`{"version": "1.0"}`)); err == nil {
		t.Error("expected error for label without productName")
	}
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	l := validLabel()

	data, err := l.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.ProductName != l.ProductName {
		t.Errorf("expected product '%s', got '%s'", l.ProductName, parsed.ProductName)
	}
	if len(parsed.Allergens) != 2 {
		t.Errorf("expected 2 allergens, got %d", len(parsed.Allergens))
	}
}

func TestValidateMedia(t *testing.T) {
	m := DefaultMedia
	if err := ValidateMedia(&m); err != nil {
		t.Fatalf("default media should validate: %v", err)
	}

	bad := Media{WidthMM: 0, HeightMM: 32}
	if err := ValidateMedia(&bad); err == nil {
		t.Error("expected error for zero width")
	}

	dark := Media{WidthMM: 57, HeightMM: 32, Darkness: 40}
	if err := ValidateMedia(&dark); err == nil {
		t.Error("expected error for out-of-range darkness")
	}
}
