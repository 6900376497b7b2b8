// Package labelformat defines the types for structured kitchen label data
package labelformat

import "time"

// Label represents one kitchen label to be rendered and printed
type Label struct {
	Version      string     `json:"version"`
	ProductName  string     `json:"productName"`
	CategoryName string     `json:"categoryName,omitempty"`
	Allergens    []string   `json:"allergens,omitempty"`
	PreparedBy   string     `json:"preparedBy,omitempty"`
	PreparedAt   *time.Time `json:"preparedAt,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	Quantity     float64    `json:"quantity,omitempty"`
	Unit         string     `json:"unit,omitempty"`
	Barcode      string     `json:"barcode,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

// Media describes the physical label stock a payload is rendered for
type Media struct {
	WidthMM  int `json:"widthMm"`
	HeightMM int `json:"heightMm"`
	Darkness int `json:"darkness,omitempty"` // 0-30
	SpeedIPS int `json:"speedIps,omitempty"` // inches per second
}

// CurrentVersion is the supported label schema version
const CurrentVersion = "1.0"

// DefaultMedia is a 57x32mm prep label, the common stock for kitchen stations
var DefaultMedia = Media{
	WidthMM:  57,
	HeightMM: 32,
	Darkness: 10,
	SpeedIPS: 4,
}
