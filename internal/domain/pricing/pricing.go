// Package pricing resolves the price of a single customized menu line.
//
// ResolveLinePrice is the pure price function. Validate is applied when a
// selection is built (cart add, order submission) so that ResolveLinePrice can
// trust its input.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/tableside/internal/domain/menu"
)

// Selection is a diner's customization of one menu item.
type Selection struct {
	// Exclusions lists base ingredients (from the item description) to leave out.
	Exclusions []string `json:"exclusions,omitempty"`
	// Instructions is free text for the kitchen.
	Instructions string `json:"instructions,omitempty"`
	// Ingredients maps a checklist name to the picked ingredient names. A name
	// repeated n times means n units of that ingredient.
	Ingredients map[string][]string `json:"ingredients,omitempty"`
	// Options maps a single-choice group name to the chosen option name or id.
	Options map[string]string `json:"options,omitempty"`
	// Toppings maps a multi-select group name to the chosen option names or ids.
	Toppings map[string][]string `json:"toppings,omitempty"`
	Quantity int                 `json:"quantity"`
}

// Line is a priced snapshot of a customized menu item. It is what personal
// orders and orders persist, so later menu changes never reprice history.
type Line struct {
	ID         string          `json:"id,omitempty"`
	MenuItemID string          `json:"menuItemId"`
	Name       string          `json:"name"`
	Selection  Selection       `json:"selection"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	LineTotal  decimal.Decimal `json:"lineTotal"`
}

// ResolveLinePrice computes the unit price (base price plus every selected
// extra) and the line total (unit price times quantity). Ingredient and option
// names that do not resolve on the item add nothing.
func ResolveLinePrice(item menu.Item, sel Selection) (unitPrice, lineTotal decimal.Decimal) {
	additional := decimal.Zero

	for listName, picked := range sel.Ingredients {
		list, ok := item.Checklist(listName)
		if !ok {
			continue
		}
		for name, count := range countNames(picked) {
			ing, ok := list.Ingredient(name)
			if !ok {
				continue
			}
			additional = additional.Add(ing.Price.Mul(decimal.NewFromInt(int64(count))))
		}
	}

	for groupName, ref := range sel.Options {
		group, ok := item.OptionGroup(groupName)
		if !ok {
			continue
		}
		if opt, ok := group.Option(ref); ok {
			additional = additional.Add(opt.Price)
		}
	}

	for groupName, refs := range sel.Toppings {
		group, ok := item.OptionGroup(groupName)
		if !ok {
			continue
		}
		for _, ref := range refs {
			if opt, ok := group.Option(ref); ok {
				additional = additional.Add(opt.Price)
			}
		}
	}

	unitPrice = item.Price.Add(additional).Round(2)
	lineTotal = unitPrice.Mul(decimal.NewFromInt(int64(sel.Quantity))).Round(2)
	return unitPrice, lineTotal
}

// Resolve returns the priced snapshot of item customized by sel.
func Resolve(item menu.Item, sel Selection) Line {
	unit, total := ResolveLinePrice(item, sel)
	return Line{
		MenuItemID: item.ID,
		Name:       item.Name,
		Selection:  sel,
		Quantity:   sel.Quantity,
		UnitPrice:  unit,
		LineTotal:  total,
	}
}

// Subtotal sums the line totals of lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal)
	}
	return sum
}

func countNames(names []string) map[string]int {
	counts := make(map[string]int, len(names))
	for _, n := range names {
		counts[n]++
	}
	return counts
}
