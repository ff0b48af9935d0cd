package rest

import (
	"context"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/pkg/event"
)

// menuItemRow is the writable shape of menu_items; options live in their
// own table.
type menuItemRow struct {
	ID            string          `json:"id,omitempty"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         int             `json:"price"`
	Category      models.Category `json:"category"`
	ImageURL      string          `json:"image_url"`
	Allergens     []string        `json:"allergens"`
	StockQuantity int             `json:"stock_quantity"`
	IsAvailable   bool            `json:"is_available"`
}

func menuRow(m *models.MenuItem) menuItemRow {
	allergens := []string(m.Allergens)
	if allergens == nil {
		allergens = []string{}
	}
	return menuItemRow{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		Price:         m.Price,
		Category:      m.Category,
		ImageURL:      m.ImageURL,
		Allergens:     allergens,
		StockQuantity: m.StockQuantity,
		IsAvailable:   m.IsAvailable,
	}
}

type MenuRepository struct{ s *store }

func (r *MenuRepository) ListItems(ctx context.Context) ([]models.MenuItem, error) {
	var items []models.MenuItem
	req := r.s.get("menu_items").Query("select", "*").Query("order", "name.asc")
	return items, r.s.send(ctx, "list menu items", req, &items)
}

func (r *MenuRepository) ListOptions(ctx context.Context) ([]models.MealOption, error) {
	var opts []models.MealOption
	req := r.s.get("meal_options").Query("select", "*").Query("order", "name.asc")
	return opts, r.s.send(ctx, "list meal options", req, &opts)
}

func (r *MenuRepository) CreateItem(ctx context.Context, item *models.MenuItem) error {
	if item.ID == "" {
		item.ID = models.NewID()
	}
	if err := r.s.send(ctx, "create menu item", r.s.post("menu_items").Body(menuRow(item)), nil); err != nil {
		return err
	}
	repositories.Notify(ctx, r.s.changes, "menu_items", event.Insert, item.ID)
	return nil
}

func (r *MenuRepository) UpdateItem(ctx context.Context, item *models.MenuItem) error {
	row := menuRow(item)
	row.ID = ""
	req := r.s.patch("menu_items").Query("id", eq(item.ID)).Body(row)
	if err := r.s.send(ctx, "update menu item", req, nil); err != nil {
		return err
	}
	repositories.Notify(ctx, r.s.changes, "menu_items", event.Update, item.ID)
	return nil
}

func (r *MenuRepository) DeleteItem(ctx context.Context, id string) error {
	if err := r.s.send(ctx, "delete menu item", r.s.delete("menu_items").Query("id", eq(id)), nil); err != nil {
		return err
	}
	repositories.Notify(ctx, r.s.changes, "menu_items", event.Delete, id)
	return nil
}

func (r *MenuRepository) DeleteOptions(ctx context.Context, mealID string) error {
	if err := r.s.send(ctx, "delete meal options", r.s.delete("meal_options").Query("meal_id", eq(mealID)), nil); err != nil {
		return err
	}
	repositories.Notify(ctx, r.s.changes, "meal_options", event.Delete)
	return nil
}

func (r *MenuRepository) InsertOptions(ctx context.Context, opts []models.MealOption) error {
	if len(opts) == 0 {
		return nil
	}
	for i := range opts {
		if opts[i].ID == "" {
			opts[i].ID = models.NewID()
		}
	}
	if err := r.s.send(ctx, "insert meal options", r.s.post("meal_options").Body(opts), nil); err != nil {
		return err
	}
	repositories.Notify(ctx, r.s.changes, "meal_options", event.Insert)
	return nil
}
