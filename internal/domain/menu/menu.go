package menu

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested menu item does not exist.
var ErrNotFound = errors.New("menu item not found")

// Item is a sellable dish or drink together with the customizations a diner
// may apply to it.
type Item struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Available   bool            `json:"available"`

	// Checklists are ingredient groups where each ingredient may be picked
	// several times, bounded by the ingredient and group maximums.
	Checklists []Checklist `json:"checklists,omitempty"`
	// OptionGroups are flat priced choices: single-choice groups (meat, bun,
	// drink) and multi-select groups (toppings).
	OptionGroups []OptionGroup `json:"optionGroups,omitempty"`
}

// Checklist is a named group of optional ingredients.
type Checklist struct {
	Name        string       `json:"name"`
	Max         int          `json:"max"`
	Ingredients []Ingredient `json:"ingredients"`
}

// Ingredient is a checklist entry priced per selected unit.
type Ingredient struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Max   int             `json:"max"`
}

// OptionGroup is a named set of priced options. Multi groups allow any subset
// of their options, each at most once.
type OptionGroup struct {
	Name    string   `json:"name"`
	Multi   bool     `json:"multi"`
	Options []Option `json:"options"`
}

// Option is a single priced choice inside an OptionGroup.
type Option struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Checklist returns the checklist with the given name.
func (it *Item) Checklist(name string) (*Checklist, bool) {
	for i := range it.Checklists {
		if it.Checklists[i].Name == name {
			return &it.Checklists[i], true
		}
	}
	return nil, false
}

// OptionGroup returns the option group with the given name.
func (it *Item) OptionGroup(name string) (*OptionGroup, bool) {
	for i := range it.OptionGroups {
		if it.OptionGroups[i].Name == name {
			return &it.OptionGroups[i], true
		}
	}
	return nil, false
}

// BaseIngredients splits the description into the ingredient tokens a diner
// can ask to leave out.
func (it *Item) BaseIngredients() []string {
	var out []string
	for _, tok := range strings.Split(it.Description, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// Ingredient returns the ingredient with the given name.
func (c *Checklist) Ingredient(name string) (*Ingredient, bool) {
	for i := range c.Ingredients {
		if c.Ingredients[i].Name == name {
			return &c.Ingredients[i], true
		}
	}
	return nil, false
}

// Option resolves an option by its ID or, failing that, by its name.
func (g *OptionGroup) Option(ref string) (*Option, bool) {
	for i := range g.Options {
		if o := &g.Options[i]; o.ID != "" && o.ID == ref {
			return o, true
		}
	}
	for i := range g.Options {
		if g.Options[i].Name == ref {
			return &g.Options[i], true
		}
	}
	return nil, false
}

// Validate checks the catalog invariants of an item: non-negative prices,
// positive maximums and unique names within each level.
func (it *Item) Validate() error {
	if it.ID == "" {
		return errors.New("menu item id is required")
	}
	if it.Price.IsNegative() {
		return fmt.Errorf("menu item %s: negative base price", it.ID)
	}

	seen := make(map[string]struct{}, len(it.Checklists))
	for _, c := range it.Checklists {
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("menu item %s: duplicate checklist %q", it.ID, c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Max < 1 {
			return fmt.Errorf("menu item %s: checklist %q needs a positive max", it.ID, c.Name)
		}

		names := make(map[string]struct{}, len(c.Ingredients))
		for _, ing := range c.Ingredients {
			if _, dup := names[ing.Name]; dup {
				return fmt.Errorf("menu item %s: duplicate ingredient %q in %q", it.ID, ing.Name, c.Name)
			}
			names[ing.Name] = struct{}{}
			if ing.Price.IsNegative() {
				return fmt.Errorf("menu item %s: negative price for %q", it.ID, ing.Name)
			}
			if ing.Max < 1 {
				return fmt.Errorf("menu item %s: ingredient %q needs a positive max", it.ID, ing.Name)
			}
		}
	}

	seen = make(map[string]struct{}, len(it.OptionGroups))
	for _, g := range it.OptionGroups {
		if _, dup := seen[g.Name]; dup {
			return fmt.Errorf("menu item %s: duplicate option group %q", it.ID, g.Name)
		}
		seen[g.Name] = struct{}{}

		names := make(map[string]struct{}, len(g.Options))
		for _, o := range g.Options {
			if _, dup := names[o.Name]; dup {
				return fmt.Errorf("menu item %s: duplicate option %q in %q", it.ID, o.Name, g.Name)
			}
			names[o.Name] = struct{}{}
			if o.Price.IsNegative() {
				return fmt.Errorf("menu item %s: negative price for option %q", it.ID, o.Name)
			}
		}
	}
	return nil
}

// Repository defines read operations for the menu catalog. Upsert is used by
// the seed and import tools only.
type Repository interface {
	List(ctx context.Context, category string) ([]Item, error)
	GetByID(ctx context.Context, id string) (*Item, error)
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)
	Upsert(ctx context.Context, item *Item) error
}
