package seeders

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/uvci/resto/app/models"
)

func init() {
	Register("menu", SeedMenu)
}

// StarterMenu is the catalog written by SeedMenu.
func StarterMenu() []models.MenuItem {
	return []models.MenuItem{
		{
			ID:            "seed-tiep-boulet",
			Name:          "Tiep Boulet",
			Description:   "Riz rouge sénégalais accompagné de boulettes de poisson et légumes frais.",
			Price:         1500,
			Category:      models.CategoryMain,
			Allergens:     models.StringList{"Poisson"},
			StockQuantity: 20,
			IsAvailable:   true,
		},
		{
			ID:            "seed-alloco-poulet",
			Name:          "Alloco Poulet",
			Description:   "Bananes plantains frites avec du poulet braisé croustillant.",
			Price:         2000,
			Category:      models.CategoryMain,
			Allergens:     models.StringList{},
			StockQuantity: 15,
			IsAvailable:   true,
			MealOptions: []models.MealOption{
				{ID: "seed-opt-riz", MealID: "seed-alloco-poulet", Name: "Riz Blanc", IsMandatory: true},
				{ID: "seed-opt-attieke", MealID: "seed-alloco-poulet", Name: "Attiéké", IsMandatory: true},
				{ID: "seed-opt-piment", MealID: "seed-alloco-poulet", Name: "Piment", PriceModifier: 100},
			},
		},
		{
			ID:            "seed-bissap",
			Name:          "Jus de Bissap",
			Description:   "Boisson rafraîchissante aux fleurs d'hibiscus et à la menthe.",
			Price:         500,
			Category:      models.CategoryDrink,
			Allergens:     models.StringList{},
			StockQuantity: 50,
			IsAvailable:   true,
		},
		{
			ID:            "seed-croissant",
			Name:          "Croissant au Beurre",
			Description:   "Viennoiserie pur beurre pour bien commencer la journée.",
			Price:         500,
			Category:      models.CategoryBreakfast,
			Allergens:     models.StringList{"Gluten", "Lait"},
			StockQuantity: 30,
			IsAvailable:   true,
		},
	}
}

// SeedMenu upserts the starter catalog by id.
func SeedMenu(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range StarterMenu() {
			opts := item.MealOptions
			item.MealOptions = nil
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&item).Error; err != nil {
				return err
			}
			if len(opts) == 0 {
				continue
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&opts).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
