package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/pkg/event"
)

const (
	tableMenuItems   = "menu_items"
	tableMealOptions = "meal_options"
)

// SQLMenuRepository is the gorm MenuRepository.
type SQLMenuRepository struct {
	db      *gorm.DB
	changes event.Publisher
}

func NewMenuRepository(db *gorm.DB, changes event.Publisher) *SQLMenuRepository {
	return &SQLMenuRepository{db: db, changes: Publisher(changes)}
}

func (r *SQLMenuRepository) ListItems(ctx context.Context) ([]models.MenuItem, error) {
	var items []models.MenuItem
	err := r.db.WithContext(ctx).Order("name asc").Find(&items).Error
	return items, translate("list menu items", err)
}

func (r *SQLMenuRepository) ListOptions(ctx context.Context) ([]models.MealOption, error) {
	var opts []models.MealOption
	err := r.db.WithContext(ctx).Order("name asc").Find(&opts).Error
	return opts, translate("list meal options", err)
}

func (r *SQLMenuRepository) CreateItem(ctx context.Context, item *models.MenuItem) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error; err != nil {
		return translate("create menu item", err)
	}
	Notify(ctx, r.changes, tableMenuItems, event.Insert, item.ID)
	return nil
}

var menuItemColumns = []string{
	"name", "description", "price", "category", "image_url",
	"allergens", "stock_quantity", "is_available",
}

// UpdateItem writes every editable column, zero values included.
func (r *SQLMenuRepository) UpdateItem(ctx context.Context, item *models.MenuItem) error {
	res := r.db.WithContext(ctx).
		Model(&models.MenuItem{ID: item.ID}).
		Select(menuItemColumns).
		Omit(clause.Associations).
		Updates(item)
	if res.Error != nil {
		return translate("update menu item", res.Error)
	}
	Notify(ctx, r.changes, tableMenuItems, event.Update, item.ID)
	return nil
}

func (r *SQLMenuRepository) DeleteItem(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.MenuItem{}).Error; err != nil {
		return translate("delete menu item", err)
	}
	Notify(ctx, r.changes, tableMenuItems, event.Delete, id)
	return nil
}

func (r *SQLMenuRepository) DeleteOptions(ctx context.Context, mealID string) error {
	if err := r.db.WithContext(ctx).Where("meal_id = ?", mealID).Delete(&models.MealOption{}).Error; err != nil {
		return translate("delete meal options", err)
	}
	Notify(ctx, r.changes, tableMealOptions, event.Delete)
	return nil
}

func (r *SQLMenuRepository) InsertOptions(ctx context.Context, opts []models.MealOption) error {
	if len(opts) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&opts).Error; err != nil {
		return translate("insert meal options", err)
	}
	Notify(ctx, r.changes, tableMealOptions, event.Insert)
	return nil
}
