package controllers

import (
	"github.com/graphql-go/graphql"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/services"
	gql "github.com/uvci/resto/pkg/graphql"
)

var mealOptionType = graphql.NewObject(graphql.ObjectConfig{
	Name: "MealOption",
	Fields: graphql.Fields{
		"id":             &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"meal_id":        &graphql.Field{Type: graphql.String},
		"name":           &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"price_modifier": &graphql.Field{Type: graphql.Int},
		"is_mandatory":   &graphql.Field{Type: graphql.Boolean},
	},
})

var menuItemType = graphql.NewObject(graphql.ObjectConfig{
	Name: "MenuItem",
	Fields: graphql.Fields{
		"id":             &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"name":           &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"description":    &graphql.Field{Type: graphql.String},
		"price":          &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"category":       &graphql.Field{Type: graphql.String},
		"image_url":      &graphql.Field{Type: graphql.String},
		"allergens":      &graphql.Field{Type: graphql.NewList(graphql.String)},
		"stock_quantity": &graphql.Field{Type: graphql.Int},
		"is_available":   &graphql.Field{Type: graphql.Boolean},
		"meal_options":   &graphql.Field{Type: graphql.NewList(mealOptionType)},
	},
})

var menuType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Menu",
	Fields: graphql.Fields{
		"source": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"items":  &graphql.Field{Type: graphql.NewList(menuItemType)},
	},
})

// NewMenuSchema is the read-only catalog schema:
//
//	{ menu(category: "Plat", search: "riz") { source items { id name price } } }
//	{ item(id: "demo-1") { name meal_options { name } } }
func NewMenuSchema(catalog *services.Catalog) (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"menu": &graphql.Field{
				Type: menuType,
				Args: graphql.FieldConfigArgument{
					"category": &graphql.ArgumentConfig{Type: graphql.String},
					"search":   &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					category, _ := p.Args["category"].(string)
					search, _ := p.Args["search"].(string)
					snap := catalog.Menu(p.Context, services.MenuQuery{Category: category, Search: search})
					return map[string]any{"source": snap.Source, "items": itemMaps(snap.Items)}, nil
				},
			},
			"item": &graphql.Field{
				Type: menuItemType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					id, _ := p.Args["id"].(string)
					item, ok := catalog.Item(p.Context, id)
					if !ok {
						return nil, nil
					}
					return itemMap(item), nil
				},
			},
		},
	})
	return gql.NewSchema(query)
}

func itemMaps(items []models.MenuItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, itemMap(it))
	}
	return out
}

// itemMap keys fields by their JSON names so the default resolvers find them.
func itemMap(it models.MenuItem) map[string]any {
	opts := make([]map[string]any, 0, len(it.MealOptions))
	for _, o := range it.MealOptions {
		opts = append(opts, map[string]any{
			"id": o.ID, "meal_id": o.MealID, "name": o.Name,
			"price_modifier": o.PriceModifier, "is_mandatory": o.IsMandatory,
		})
	}
	allergens := []string(it.Allergens)
	if allergens == nil {
		allergens = []string{}
	}
	return map[string]any{
		"id":             it.ID,
		"name":           it.Name,
		"description":    it.Description,
		"price":          it.Price,
		"category":       string(it.Category),
		"image_url":      it.ImageURL,
		"allergens":      allergens,
		"stock_quantity": it.StockQuantity,
		"is_available":   it.IsAvailable,
		"meal_options":   opts,
	}
}
