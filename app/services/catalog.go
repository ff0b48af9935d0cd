package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/event"
	"github.com/uvci/resto/pkg/logger"
	"github.com/uvci/resto/pkg/metrics"
	"github.com/uvci/resto/pkg/workerpool"
)

const refreshKey = "catalog.refresh"

// Snapshot is one load of the menu and where it came from.
type Snapshot struct {
	Items    []models.MenuItem `json:"items"`
	Source   string            `json:"source"`
	LoadedAt time.Time         `json:"loaded_at"`
}

// MenuQuery filters the menu. An empty category or "Tout" matches every
// category; Search matches name or description, ignoring case.
type MenuQuery struct {
	Category string
	Search   string
}

// Catalog serves the menu from an in-process snapshot. The live source is
// guarded by a breaker; every substitution by the fallback is logged.
type Catalog struct {
	live     DataSource
	fallback DataSource
	breaker  *Breaker
	pool     *workerpool.Pool

	mu   sync.RWMutex
	snap *Snapshot
	// gen numbers loads as they start; applied is the newest one stored.
	gen, applied uint64

	// OnSource, when set, observes the source of every load.
	OnSource func(source string)
}

func NewCatalog(live DataSource, breaker *Breaker, pool *workerpool.Pool) *Catalog {
	return &Catalog{live: live, fallback: FallbackSource{}, breaker: breaker, pool: pool}
}

// FetchMenu reloads the menu and replaces the snapshot. A load that
// finishes after a newer one has been stored is discarded.
func (c *Catalog) FetchMenu(ctx context.Context) Snapshot {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	items, source := c.load(ctx)
	snap := Snapshot{Items: items, Source: source, LoadedAt: time.Now().UTC()}

	c.mu.Lock()
	if gen < c.applied && c.snap != nil {
		current := *c.snap
		c.mu.Unlock()
		logger.WithCtx(ctx).Debug("catalog: stale load discarded", "generation", gen)
		return current
	}
	c.applied = gen
	c.snap = &snap
	c.mu.Unlock()

	metrics.SetCatalogSource(source)
	if c.OnSource != nil {
		c.OnSource(source)
	}
	return snap
}

func (c *Catalog) load(ctx context.Context) ([]models.MenuItem, string) {
	if c.breaker.Allow() {
		items, err := c.live.Load(ctx)
		if err == nil {
			c.breaker.Success()
			return items, c.live.Name()
		}
		c.breaker.Failure()
		logger.WithCtx(ctx).Warn("catalog: live source failed, serving fallback",
			"error", err, "breaker", c.breaker.State())
	} else {
		logger.WithCtx(ctx).Warn("catalog: breaker open, serving fallback")
	}
	items, _ := c.fallback.Load(ctx)
	return items, c.fallback.Name()
}

// Current returns the cached snapshot, loading it on first use.
func (c *Catalog) Current(ctx context.Context) Snapshot {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil {
		return *snap
	}
	return c.FetchMenu(ctx)
}

func (c *Catalog) Menu(ctx context.Context, q MenuQuery) Snapshot {
	snap := c.Current(ctx)
	category := strings.TrimSpace(q.Category)
	search := strings.ToLower(strings.TrimSpace(q.Search))
	if (category == "" || category == string(models.CategoryAll)) && search == "" {
		return snap
	}

	filtered := make([]models.MenuItem, 0, len(snap.Items))
	for _, item := range snap.Items {
		if category != "" && category != string(models.CategoryAll) && string(item.Category) != category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(item.Name), search) &&
			!strings.Contains(strings.ToLower(item.Description), search) {
			continue
		}
		filtered = append(filtered, item)
	}
	snap.Items = filtered
	return snap
}

// Item finds a menu item in the current snapshot.
func (c *Catalog) Item(ctx context.Context, id string) (models.MenuItem, bool) {
	for _, item := range c.Current(ctx).Items {
		if item.ID == id {
			return item, true
		}
	}
	return models.MenuItem{}, false
}

// Invalidate drops the snapshot; the next read reloads.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}

// RemoveLocal drops an item from the snapshot ahead of the store delete.
func (c *Catalog) RemoveLocal(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return
	}
	items := make([]models.MenuItem, 0, len(c.snap.Items))
	for _, item := range c.snap.Items {
		if item.ID != id {
			items = append(items, item)
		}
	}
	next := *c.snap
	next.Items = items
	c.snap = &next
}

// Refresh schedules a reload on the pool. Refreshes requested while one is
// queued collapse into it.
func (c *Catalog) Refresh() {
	if c.pool == nil {
		c.FetchMenu(context.Background())
		return
	}
	if _, err := c.pool.SubmitKey(refreshKey, func() { c.FetchMenu(context.Background()) }); err != nil {
		logger.Warn("catalog: refresh not scheduled", "error", err)
	}
}

// Watch refreshes the catalog on every change to menu_items or meal_options.
func (c *Catalog) Watch(bus *event.Bus) []*event.Subscription {
	onChange := func(ctx context.Context, ch event.Change) {
		logger.WithCtx(ctx).Debug("catalog: change received", "table", ch.Table, "type", ch.Type)
		c.Refresh()
	}
	return []*event.Subscription{
		bus.SubscribeTable("menu_items", nil, onChange),
		bus.SubscribeTable("meal_options", nil, onChange),
	}
}

// Probe reloads when the last load was not live, so a recovered store is
// picked up without waiting for a change event.
func (c *Catalog) Probe(ctx context.Context) {
	c.mu.RLock()
	stale := c.snap == nil || c.snap.Source != SourceLive
	c.mu.RUnlock()
	if stale {
		c.FetchMenu(ctx)
	}
}

func (c *Catalog) BreakerState() BreakerState { return c.breaker.State() }

// OptionChoice is what the client picked in the options dialog.
type OptionChoice struct {
	Mandatory string   `json:"mandatory_option_id"`
	Optional  []string `json:"optional_option_ids"`
	Note      string   `json:"note"`
}

// BuildSelection validates a choice against the item and returns the
// selected options: the mandatory pick, the optional picks in menu order,
// then the note.
func BuildSelection(item models.MenuItem, choice OptionChoice) ([]models.SelectedOption, error) {
	if !item.IsAvailable {
		return nil, apperr.Invalid(map[string]string{"menu_item_id": "Ce plat n'est pas disponible"})
	}

	selected := []models.SelectedOption{}
	mandatory := item.MandatoryOptions()
	switch {
	case len(mandatory) > 0 && choice.Mandatory == "":
		return nil, apperr.Invalid(map[string]string{"mandatory_option_id": "Veuillez choisir un accompagnement"})
	case choice.Mandatory != "":
		opt, ok := item.Option(choice.Mandatory)
		if !ok || !opt.IsMandatory {
			return nil, apperr.Invalid(map[string]string{"mandatory_option_id": "unknown option " + choice.Mandatory})
		}
		selected = append(selected, models.SelectedOption{
			ID: opt.ID, Name: opt.Name, Type: models.OptionMandatory, PriceModifier: opt.PriceModifier,
		})
	}

	picked := make(map[string]bool, len(choice.Optional))
	for _, id := range choice.Optional {
		opt, ok := item.Option(id)
		if !ok || opt.IsMandatory {
			return nil, apperr.Invalid(map[string]string{"optional_option_ids": "unknown option " + id})
		}
		picked[id] = true
	}
	for _, opt := range item.MealOptions {
		if picked[opt.ID] {
			selected = append(selected, models.SelectedOption{
				ID: opt.ID, Name: opt.Name, Type: models.OptionOptional, PriceModifier: opt.PriceModifier,
			})
		}
	}

	if note := strings.TrimSpace(choice.Note); note != "" {
		selected = append(selected, models.NoteOption(note))
	}
	return selected, nil
}
