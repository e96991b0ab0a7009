package models

import "time"

const (
	OptionCategoryScene = "scene"
	OptionCategoryRole  = "role"
	OptionCategoryStyle = "style"
)

// OptionCatalogEntry is one selectable preset for the reply composer.
type OptionCatalogEntry struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Category  string    `gorm:"type:varchar(16);not null;index:idx_option_catalog_category_sort,priority:1" json:"category"`
	Label     string    `gorm:"type:varchar(120);not null" json:"label"`
	SortOrder int       `gorm:"not null;default:0;index:idx_option_catalog_category_sort,priority:2" json:"sort_order"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OptionCatalogEntry) TableName() string {
	return "option_catalog"
}

// DefaultOptionCatalog is seeded when the catalog table is empty.
func DefaultOptionCatalog() []OptionCatalogEntry {
	seed := map[string][]string{
		OptionCategoryScene: {"Work", "Friends", "Family", "Dating", "Customer Support"},
		OptionCategoryRole:  {"Colleague", "Manager", "Friend", "Partner", "Customer"},
		OptionCategoryStyle: {"Friendly", "Professional", "Witty", "Empathetic", "Direct"},
	}
	var out []OptionCatalogEntry
	for _, category := range []string{OptionCategoryScene, OptionCategoryRole, OptionCategoryStyle} {
		for i, label := range seed[category] {
			out = append(out, OptionCatalogEntry{Category: category, Label: label, SortOrder: i, IsActive: true})
		}
	}
	return out
}
