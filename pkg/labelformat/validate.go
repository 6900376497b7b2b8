package labelformat

import (
	"fmt"
	"strings"
)

// Validate validates a Label structure
func Validate(l *Label) error {
	if l.Version != CurrentVersion {
		return fmt.Errorf("unsupported version: %s (expected %s)", l.Version, CurrentVersion)
	}

	if strings.TrimSpace(l.ProductName) == "" {
		return fmt.Errorf("productName is required")
	}

	if l.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative")
	}

	if l.Quantity > 0 && l.Unit == "" {
		return fmt.Errorf("unit is required when quantity is set")
	}

	seen := make(map[string]bool)
	for i, a := range l.Allergens {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("allergen[%d]: empty name", i)
		}
		key := strings.ToLower(a)
		if seen[key] {
			return fmt.Errorf("allergen[%d]: duplicate '%s'", i, a)
		}
		seen[key] = true
	}

	if l.PreparedAt != nil && l.ExpiresAt != nil && l.ExpiresAt.Before(*l.PreparedAt) {
		return fmt.Errorf("expiresAt must not be before preparedAt")
	}

	return nil
}

// ValidateMedia validates label stock parameters
func ValidateMedia(m *Media) error {
	if m.WidthMM <= 0 || m.HeightMM <= 0 {
		return fmt.Errorf("label dimensions must be positive (got %dx%dmm)", m.WidthMM, m.HeightMM)
	}
	if m.Darkness < 0 || m.Darkness > 30 {
		return fmt.Errorf("darkness must be between 0 and 30 (got %d)", m.Darkness)
	}
	if m.SpeedIPS < 0 || m.SpeedIPS > 14 {
		return fmt.Errorf("speed must be between 0 and 14 ips (got %d)", m.SpeedIPS)
	}
	return nil
}
