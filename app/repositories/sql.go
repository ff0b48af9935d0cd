package repositories

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/uvci/resto/pkg/event"
)

// NewSQLGateway builds the gorm driver over db.
func NewSQLGateway(db *gorm.DB, changes event.Publisher) Gateway {
	changes = Publisher(changes)
	return Gateway{
		Name:    "sql",
		Menu:    NewMenuRepository(db, changes),
		Orders:  NewOrderRepository(db, changes),
		Users:   NewUserRepository(db, changes),
		Changes: changes,
	}
}

// translate maps driver errors to the gateway sentinels.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("repositories: %s: %w", op, ErrNotFound)
	case isDuplicate(err):
		return fmt.Errorf("repositories: %s: %w", op, ErrDuplicate)
	default:
		return fmt.Errorf("repositories: %s: %w", op, err)
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
