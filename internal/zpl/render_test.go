package zpl

import (
	"strings"
	"testing"
	"time"

	"github.com/prepdeck/label-engine/pkg/labelformat"
)

func TestEncoder_LabelEnvelope(t *testing.T) {
	e := NewEncoder()
	e.StartLabel()
	e.SetWidth(456)
	e.Text(16, 16, 40, "Hollandaise")
	e.EndLabel()

	out := string(e.Bytes())
	if !strings.HasPrefix(out, "^XA") {
		t.Errorf("expected stream to start with ^XA, got %q", out[:4])
	}
	if !strings.HasSuffix(out, "^XZ") {
		t.Errorf("expected stream to end with ^XZ")
	}
	if !strings.Contains(out, "^FDHollandaise^FS") {
		t.Errorf("expected text field, got %q", out)
	}
}

func TestEncoder_SanitizesFieldData(t *testing.T) {
	e := NewEncoder()
	e.Text(0, 0, 24, "50% ^FD injection~")

	out := string(e.Bytes())
	if strings.Contains(out, "^FD50% ^FD") || strings.Contains(out, "injection~") {
		t.Errorf("control characters leaked into field data: %q", out)
	}
}

func TestEncoder_DarknessClamped(t *testing.T) {
	e := NewEncoder()
	e.SetDarkness(99)
	if got := string(e.Bytes()); got != "^MD30" {
		t.Errorf("expected ^MD30, got %q", got)
	}
}

func TestRender_AllFields(t *testing.T) {
	prep := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	exp := prep.Add(72 * time.Hour)
	l := &labelformat.Label{
		Version:      labelformat.CurrentVersion,
		ProductName:  "Hollandaise",
		CategoryName: "Sauces",
		Allergens:    []string{"Egg", "Dairy"},
		PreparedBy:   "M. Garcia",
		PreparedAt:   &prep,
		ExpiresAt:    &exp,
		Quantity:     1.5,
		Unit:         "L",
		Barcode:      "4006381333931",
	}

	out, err := Render(l, labelformat.DefaultMedia)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	s := string(out)
	for _, want := range []string{
		"^PW456", // 57mm * 8 dots
		"Hollandaise",
		"Sauces",
		"QTY 1.5 L",
		"ALLERGENS: Egg, Dairy",
		"M. Garcia",
		"USE BY 17 Mar 09:30",
		"^BCN",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("expected payload to contain %q", want)
		}
	}
}

func TestRender_RejectsInvalidLabel(t *testing.T) {
	l := &labelformat.Label{Version: labelformat.CurrentVersion}
	if _, err := Render(l, labelformat.DefaultMedia); err == nil {
		t.Error("expected error for label without productName")
	}
}

func TestRender_RejectsInvalidMedia(t *testing.T) {
	l := &labelformat.Label{Version: labelformat.CurrentVersion, ProductName: "Stock"}
	if _, err := Render(l, labelformat.Media{}); err == nil {
		t.Error("expected error for zero-size media")
	}
}
