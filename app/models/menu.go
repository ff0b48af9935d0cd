package models

import (
	"strings"

	"gorm.io/gorm"
)

// Category is the fixed menu section of an item.
type Category string

const (
	CategoryBreakfast Category = "Petit-déjeuner"
	CategoryStarter   Category = "Entrée"
	CategoryMain      Category = "Plat"
	CategoryDessert   Category = "Dessert"
	CategoryDrink     Category = "Boisson"

	// CategoryAll is the menu filter that matches every category.
	CategoryAll Category = "Tout"
)

var Categories = []Category{CategoryBreakfast, CategoryStarter, CategoryMain, CategoryDessert, CategoryDrink}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// MenuItem is a dish or drink on the catalog.
type MenuItem struct {
	ID            string       `gorm:"primaryKey;size:64" json:"id"`
	Name          string       `gorm:"size:255;not null;index" json:"name"`
	Description   string       `gorm:"type:text" json:"description"`
	Price         int          `gorm:"not null;default:0" json:"price"`
	Category      Category     `gorm:"size:50" json:"category"`
	ImageURL      string       `gorm:"size:512" json:"image_url"`
	Allergens     StringList   `gorm:"type:text" json:"allergens"`
	StockQuantity int          `gorm:"not null;default:0" json:"stock_quantity"`
	IsAvailable   bool         `gorm:"not null" json:"is_available"`
	MealOptions   []MealOption `gorm:"foreignKey:MealID;constraint:OnDelete:CASCADE" json:"meal_options"`
}

func (MenuItem) TableName() string { return "menu_items" }

func (m *MenuItem) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	return nil
}

// Normalize fills the defaults for columns a record may be missing.
func (m *MenuItem) Normalize() {
	if m.Allergens == nil {
		m.Allergens = StringList{}
	}
	if m.MealOptions == nil {
		m.MealOptions = []MealOption{}
	}
}

// IsDemo reports whether the item belongs to the built-in demo catalog and
// must never be written to the store.
func (m MenuItem) IsDemo() bool { return strings.HasPrefix(m.ID, "demo") }

// MandatoryOptions returns the single-choice options of the item.
func (m MenuItem) MandatoryOptions() []MealOption {
	var out []MealOption
	for _, o := range m.MealOptions {
		if o.IsMandatory {
			out = append(out, o)
		}
	}
	return out
}

// Option finds an option of the item by id.
func (m MenuItem) Option(id string) (MealOption, bool) {
	for _, o := range m.MealOptions {
		if o.ID == id {
			return o, true
		}
	}
	return MealOption{}, false
}

// MealOption is a modifier attached to exactly one menu item.
type MealOption struct {
	ID            string `gorm:"primaryKey;size:64" json:"id"`
	MealID        string `gorm:"size:64;not null;index" json:"meal_id"`
	Name          string `gorm:"size:255;not null" json:"name"`
	PriceModifier int    `gorm:"not null;default:0" json:"price_modifier"`
	IsMandatory   bool   `gorm:"not null" json:"is_mandatory"`
}

func (MealOption) TableName() string { return "meal_options" }

func (o *MealOption) BeforeCreate(*gorm.DB) error {
	if o.ID == "" {
		o.ID = NewID()
	}
	return nil
}

// OptionKind tags how a selected option was captured.
type OptionKind string

const (
	OptionMandatory OptionKind = "mandatory"
	OptionOptional  OptionKind = "optional"
	OptionManual    OptionKind = "manual"
)

// NotePrefix starts the name of a manual note option.
const NotePrefix = "Note: "

// SelectedOption is a choice captured when an item is added to the cart. A
// manual note has no id and no price modifier.
type SelectedOption struct {
	ID            string     `json:"id,omitempty"`
	Name          string     `json:"name"`
	Type          OptionKind `json:"type"`
	PriceModifier int        `json:"price_modifier"`
}

// NoteOption wraps free text as a manual selected option.
func NoteOption(text string) SelectedOption {
	return SelectedOption{Name: NotePrefix + text, Type: OptionManual}
}

// NoteText returns the free text of a manual option.
func (o SelectedOption) NoteText() string {
	return strings.TrimPrefix(o.Name, NotePrefix)
}
