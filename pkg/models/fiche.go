package models

import "time"

// Fiche represents a standardized CEE operation sheet and its calculation
type Fiche struct {
	Code             string              `yaml:"code" json:"code"`
	Name             string              `yaml:"name" json:"name"`
	Version          string              `yaml:"version" json:"version"`
	Sector           string              `yaml:"sector" json:"sector"`     // BAR, BAT, IND, AGRI, RES, TRA
	Typology         string              `yaml:"typology" json:"typology"` // TH, EN, EQ, SE...
	Description      string              `yaml:"description" json:"description"`
	FunctionSource   string              `yaml:"function" json:"function"`
	ParameterOptions map[string][]string `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Labels           map[string]string   `yaml:"labels,omitempty" json:"labels,omitempty"`
	UpdatedAt        time.Time           `yaml:"-" json:"updated_at"`
}

// FicheFilter narrows a fiche listing, empty fields match everything
type FicheFilter struct {
	Sector   string
	Typology string
}

// Selection holds the wizard choices made before the parameter form
type Selection struct {
	Date       string `json:"date"`
	Department string `json:"department"`
	Sector     string `json:"sector"`
	Typology   string `json:"typology"`
	FicheCode  string `json:"fiche_code"`
}
