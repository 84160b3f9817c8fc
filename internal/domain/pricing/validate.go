package pricing

import (
	"fmt"

	"github.com/xenking/tableside/internal/domain/menu"
)

// SelectionInvalidError reports a selection that does not fit the menu item
// it was built for.
type SelectionInvalidError struct {
	ItemID string
	Group  string
	Name   string
	Reason string
}

func (e *SelectionInvalidError) Error() string {
	switch {
	case e.Name != "":
		return fmt.Sprintf("invalid selection for item %s: %s %q in %q", e.ItemID, e.Reason, e.Name, e.Group)
	case e.Group != "":
		return fmt.Sprintf("invalid selection for item %s: %s %q", e.ItemID, e.Reason, e.Group)
	default:
		return fmt.Sprintf("invalid selection for item %s: %s", e.ItemID, e.Reason)
	}
}

// Validate checks sel against item. Selections over a declared maximum are
// rejected rather than clamped.
func Validate(item menu.Item, sel Selection) error {
	invalid := func(group, name, reason string) error {
		return &SelectionInvalidError{ItemID: item.ID, Group: group, Name: name, Reason: reason}
	}

	if sel.Quantity < 1 {
		return invalid("", "", "quantity must be at least 1")
	}

	for listName, picked := range sel.Ingredients {
		list, ok := item.Checklist(listName)
		if !ok {
			return invalid(listName, "", "unknown checklist")
		}
		if len(picked) > list.Max {
			return invalid(listName, "", fmt.Sprintf("more than %d selections in checklist", list.Max))
		}
		for name, count := range countNames(picked) {
			ing, ok := list.Ingredient(name)
			if !ok {
				return invalid(listName, name, "unknown ingredient")
			}
			if count > ing.Max {
				return invalid(listName, name, fmt.Sprintf("more than %d of ingredient", ing.Max))
			}
		}
	}

	for groupName, ref := range sel.Options {
		group, ok := item.OptionGroup(groupName)
		if !ok {
			return invalid(groupName, "", "unknown option group")
		}
		if group.Multi {
			return invalid(groupName, "", "multi-select group used as single choice")
		}
		if _, ok := group.Option(ref); !ok {
			return invalid(groupName, ref, "unknown option")
		}
	}

	for groupName, refs := range sel.Toppings {
		group, ok := item.OptionGroup(groupName)
		if !ok {
			return invalid(groupName, "", "unknown option group")
		}
		if !group.Multi {
			return invalid(groupName, "", "single-choice group used as multi-select")
		}
		seen := make(map[string]struct{}, len(refs))
		for _, ref := range refs {
			opt, ok := group.Option(ref)
			if !ok {
				return invalid(groupName, ref, "unknown option")
			}
			if _, dup := seen[opt.Name]; dup {
				return invalid(groupName, ref, "repeated topping")
			}
			seen[opt.Name] = struct{}{}
		}
	}

	return nil
}
