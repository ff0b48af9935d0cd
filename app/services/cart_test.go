package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/cache"
)

var alloco = models.MenuItem{ID: "alloco", Name: "Alloco Poulet", Price: 2000, IsAvailable: true}

func TestCartAddMergeAndTotals(t *testing.T) {
	c := NewCart()
	riz := []models.SelectedOption{{ID: "opt-riz", Name: "Riz Blanc", Type: models.OptionMandatory}}

	first := c.Add(alloco, riz)
	c.Add(alloco, riz)
	assert.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, 4000, c.Total())

	require.True(t, c.UpdateQuantity(first.ID, 1))
	assert.Equal(t, 6000, c.Total())
	assert.Equal(t, 3, c.Count())

	require.True(t, c.Remove(first.ID))
	assert.Equal(t, 0, c.Total())
	assert.Equal(t, 0, c.Count())
}

func TestCartDifferentOptionsMakeNewLine(t *testing.T) {
	c := NewCart()
	c.Add(alloco, []models.SelectedOption{{ID: "opt-riz", Name: "Riz Blanc"}})
	c.Add(alloco, []models.SelectedOption{{ID: "opt-attieke", Name: "Attiéké"}})
	c.Add(alloco, nil)
	assert.Len(t, c.Items, 3)
}

func TestCartOptionOrderDoesNotMatter(t *testing.T) {
	c := NewCart()
	a := models.SelectedOption{ID: "opt-riz", Name: "Riz Blanc"}
	b := models.SelectedOption{ID: "opt-piment", Name: "Piment", PriceModifier: 100}
	c.Add(alloco, []models.SelectedOption{a, b})
	c.Add(alloco, []models.SelectedOption{b, a})
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, 4200, c.Total())
}

func TestCartUpdateQuantityNeverBelowOne(t *testing.T) {
	c := NewCart()
	line := c.Add(alloco, nil)

	assert.False(t, c.UpdateQuantity(line.ID, -1))
	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.False(t, c.UpdateQuantity("missing", 1))
	assert.True(t, c.Has(line.ID))
	assert.False(t, c.Has("missing"))
}

func TestCartTotalIncludesModifiersAndNotes(t *testing.T) {
	c := NewCart()
	c.Add(alloco, []models.SelectedOption{
		{ID: "opt-piment", Name: "Piment", Type: models.OptionOptional, PriceModifier: 100},
		models.NoteOption("sans oignons"),
	})
	assert.Equal(t, 2100, c.Total())
}

func TestCartPaymentMethod(t *testing.T) {
	c := NewCart()
	assert.Equal(t, models.PaymentWave, c.PaymentMethod)

	require.NoError(t, c.SetPaymentMethod(models.PaymentCash))
	assert.Equal(t, models.PaymentCash, c.PaymentMethod)

	err := c.SetPaymentMethod("card")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, models.PaymentCash, c.PaymentMethod)
}

func TestCartStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewCartStore(cache.NewMemory(), time.Hour)

	empty, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, models.PaymentWave, empty.PaymentMethod)

	_, err = store.Update(ctx, "sess-1", func(c *Cart) error {
		c.Add(alloco, []models.SelectedOption{{ID: "opt-riz", Name: "Riz Blanc"}})
		return c.SetPaymentMethod(models.PaymentCash)
	})
	require.NoError(t, err)

	c, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "Alloco Poulet", c.Items[0].MenuItem.Name)
	assert.Equal(t, models.PaymentCash, c.PaymentMethod)

	// merging still works after the round trip
	c.Add(alloco, []models.SelectedOption{{ID: "opt-riz", Name: "Riz Blanc"}})
	assert.Len(t, c.Items, 1)

	other, err := store.Load(ctx, "sess-2")
	require.NoError(t, err)
	assert.Empty(t, other.Items)
}
