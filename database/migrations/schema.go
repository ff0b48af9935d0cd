package migrations

import (
	"gorm.io/gorm"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/pkg/migration"
	"github.com/uvci/resto/pkg/queue"
)

func init() {
	migration.Register("20260301000000_create_users_table", &CreateUsersTable{})
	migration.Register("20260301000001_create_profiles_table", &CreateProfilesTable{})
	migration.Register("20260301000002_create_menu_tables", &CreateMenuTables{})
	migration.Register("20260301000003_create_orders_table", &CreateOrdersTable{})
	migration.Register("20260301000004_create_order_items_table", &CreateOrderItemsTable{})
	migration.Register("20260301000005_create_failed_jobs_table", &CreateFailedJobsTable{})
}

type CreateUsersTable struct{}

func (*CreateUsersTable) Up(db *gorm.DB) error   { return db.AutoMigrate(&models.User{}) }
func (*CreateUsersTable) Down(db *gorm.DB) error { return db.Migrator().DropTable("users") }

type CreateProfilesTable struct{}

func (*CreateProfilesTable) Up(db *gorm.DB) error   { return db.AutoMigrate(&models.Profile{}) }
func (*CreateProfilesTable) Down(db *gorm.DB) error { return db.Migrator().DropTable("profiles") }

// menu_items and meal_options go together: the option foreign key is declared
// on the item's association.
type CreateMenuTables struct{}

func (*CreateMenuTables) Up(db *gorm.DB) error {
	return db.AutoMigrate(&models.MenuItem{}, &models.MealOption{})
}

func (*CreateMenuTables) Down(db *gorm.DB) error {
	return db.Migrator().DropTable("meal_options", "menu_items")
}

type CreateOrdersTable struct{}

func (*CreateOrdersTable) Up(db *gorm.DB) error   { return db.AutoMigrate(&models.Order{}) }
func (*CreateOrdersTable) Down(db *gorm.DB) error { return db.Migrator().DropTable("orders") }

type CreateOrderItemsTable struct{}

func (*CreateOrderItemsTable) Up(db *gorm.DB) error { return db.AutoMigrate(&models.OrderItem{}) }
func (*CreateOrderItemsTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable("order_items")
}

type CreateFailedJobsTable struct{}

func (*CreateFailedJobsTable) Up(db *gorm.DB) error { return db.AutoMigrate(&queue.FailedJobRecord{}) }
func (*CreateFailedJobsTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable("failed_jobs")
}
