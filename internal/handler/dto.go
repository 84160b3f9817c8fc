package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/tableside/internal/domain/cart"
	"github.com/xenking/tableside/internal/domain/menu"
	"github.com/xenking/tableside/internal/domain/order"
	"github.com/xenking/tableside/internal/domain/payment"
	"github.com/xenking/tableside/internal/domain/pricing"
	"github.com/xenking/tableside/internal/domain/tableorder"
	"github.com/xenking/tableside/internal/domain/tip"
	"github.com/xenking/tableside/internal/domain/waiter"
)

// Money is rendered as a JSON number. Requests accept numbers or strings
// through decimal.Decimal.
func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// tipRequest is the tip part of a request body. TipAmount wins over Tip.
type tipRequest struct {
	Tip       string           `json:"tip,omitempty"`
	TipAmount *decimal.Decimal `json:"tipAmount,omitempty"`
}

func (t tipRequest) spec() (tip.Spec, error) {
	if t.TipAmount != nil {
		return tip.Custom(*t.TipAmount), nil
	}
	return tip.Parse(t.Tip)
}

type ingredientResponse struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Max   int     `json:"max"`
}

type checklistResponse struct {
	Name        string               `json:"name"`
	Max         int                  `json:"max"`
	Ingredients []ingredientResponse `json:"ingredients"`
}

type optionResponse struct {
	ID    string  `json:"id,omitempty"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type optionGroupResponse struct {
	Name    string           `json:"name"`
	Multi   bool             `json:"multi"`
	Options []optionResponse `json:"options"`
}

type menuItemResponse struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Description     string                `json:"description"`
	BaseIngredients []string              `json:"baseIngredients"`
	Price           float64               `json:"price"`
	Category        string                `json:"category"`
	Image           string                `json:"image,omitempty"`
	Available       bool                  `json:"available"`
	Checklists      []checklistResponse   `json:"checklists,omitempty"`
	OptionGroups    []optionGroupResponse `json:"optionGroups,omitempty"`
}

func toMenuItem(it menu.Item) menuItemResponse {
	resp := menuItemResponse{
		ID:              it.ID,
		Name:            it.Name,
		Description:     it.Description,
		BaseIngredients: it.BaseIngredients(),
		Price:           money(it.Price),
		Category:        it.Category,
		Image:           it.Image,
		Available:       it.Available,
	}
	if resp.BaseIngredients == nil {
		resp.BaseIngredients = []string{}
	}
	for _, c := range it.Checklists {
		cr := checklistResponse{Name: c.Name, Max: c.Max, Ingredients: make([]ingredientResponse, len(c.Ingredients))}
		for i, ing := range c.Ingredients {
			cr.Ingredients[i] = ingredientResponse{Name: ing.Name, Price: money(ing.Price), Max: ing.Max}
		}
		resp.Checklists = append(resp.Checklists, cr)
	}
	for _, g := range it.OptionGroups {
		gr := optionGroupResponse{Name: g.Name, Multi: g.Multi, Options: make([]optionResponse, len(g.Options))}
		for i, o := range g.Options {
			gr.Options[i] = optionResponse{ID: o.ID, Name: o.Name, Price: money(o.Price)}
		}
		resp.OptionGroups = append(resp.OptionGroups, gr)
	}
	return resp
}

type lineResponse struct {
	ID         string            `json:"id,omitempty"`
	MenuItemID string            `json:"menuItemId"`
	Name       string            `json:"name"`
	Selection  pricing.Selection `json:"selection"`
	Quantity   int               `json:"quantity"`
	UnitPrice  float64           `json:"unitPrice"`
	LineTotal  float64           `json:"lineTotal"`
}

func toLine(l pricing.Line) lineResponse {
	return lineResponse{
		ID:         l.ID,
		MenuItemID: l.MenuItemID,
		Name:       l.Name,
		Selection:  l.Selection,
		Quantity:   l.Quantity,
		UnitPrice:  money(l.UnitPrice),
		LineTotal:  money(l.LineTotal),
	}
}

func toLines(lines []pricing.Line) []lineResponse {
	out := make([]lineResponse, len(lines))
	for i, l := range lines {
		out[i] = toLine(l)
	}
	return out
}

type cartResponse struct {
	TableID    string         `json:"tableId"`
	CustomerID string         `json:"customerId"`
	Lines      []lineResponse `json:"lines"`
	Tip        string         `json:"tip"`
	Subtotal   float64        `json:"subtotal"`
	TipAmount  float64        `json:"tipAmount"`
	Total      float64        `json:"total"`
}

func toCart(c *cart.Cart, totals cart.Totals, spec tip.Spec) cartResponse {
	return cartResponse{
		TableID:    c.TableID,
		CustomerID: c.CustomerID,
		Lines:      toLines(totals.Lines),
		Tip:        spec.String(),
		Subtotal:   money(totals.Subtotal),
		TipAmount:  money(totals.Tip),
		Total:      money(totals.Total),
	}
}

type personalOrderResponse struct {
	ID           string         `json:"id"`
	CustomerID   string         `json:"customerId"`
	CustomerName string         `json:"customerName"`
	Lines        []lineResponse `json:"lines"`
	Subtotal     float64        `json:"subtotal"`
	CreatedAt    time.Time      `json:"createdAt"`
}

func toPersonalOrder(po tableorder.PersonalOrder) personalOrderResponse {
	return personalOrderResponse{
		ID:           po.ID,
		CustomerID:   po.CustomerID,
		CustomerName: po.CustomerName,
		Lines:        toLines(po.Lines),
		Subtotal:     money(po.Subtotal),
		CreatedAt:    po.CreatedAt,
	}
}

func toPersonalOrders(pos []tableorder.PersonalOrder) []personalOrderResponse {
	out := make([]personalOrderResponse, len(pos))
	for i, po := range pos {
		out[i] = toPersonalOrder(po)
	}
	return out
}

type tableOrderResponse struct {
	ID             string                  `json:"id,omitempty"`
	TableID        string                  `json:"tableId"`
	Orderees       []string                `json:"orderees"`
	PersonalOrders []personalOrderResponse `json:"personalOrders"`
	CustomerTotals map[string]float64      `json:"customerTotals"`
	TableTotal     float64                 `json:"tableTotal"`
}

func toTableOrder(tableID string, to *tableorder.TableOrder) tableOrderResponse {
	resp := tableOrderResponse{
		TableID:        tableID,
		Orderees:       []string{},
		PersonalOrders: []personalOrderResponse{},
		CustomerTotals: map[string]float64{},
	}
	if to == nil {
		return resp
	}
	resp.ID = to.ID
	resp.Orderees = append(resp.Orderees, to.Orderees...)
	resp.PersonalOrders = toPersonalOrders(to.PersonalOrders)
	for _, name := range to.Orderees {
		resp.CustomerTotals[name] = money(tableorder.CustomerTotal(to, name))
	}
	resp.TableTotal = money(tableorder.TableTotal(to))
	return resp
}

type orderResponse struct {
	ID               string         `json:"id"`
	TableID          string         `json:"tableId"`
	Status           order.Status   `json:"status"`
	NextStatus       order.Status   `json:"nextStatus,omitempty"`
	Items            []lineResponse `json:"items"`
	Subtotal         float64        `json:"subtotal"`
	Tip              float64        `json:"tip"`
	Total            float64        `json:"total"`
	PaymentReference string         `json:"paymentReference,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

func toOrder(o *order.Order) orderResponse {
	next, _ := o.Status.Next()
	return orderResponse{
		ID:               o.ID,
		TableID:          o.TableID,
		Status:           o.Status,
		NextStatus:       next,
		Items:            toLines(o.Items),
		Subtotal:         money(o.Subtotal),
		Tip:              money(o.Tip),
		Total:            money(o.Total),
		PaymentReference: o.PaymentReference,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

type paymentResponse struct {
	ID               string         `json:"id"`
	TableID          string         `json:"tableId"`
	PersonalOrderIDs []string       `json:"personalOrderIds"`
	Subtotal         float64        `json:"subtotal"`
	Tip              float64        `json:"tip"`
	Amount           float64        `json:"amount"`
	Currency         string         `json:"currency"`
	Status           payment.Status `json:"status"`
	ClientSecret     string         `json:"clientSecret,omitempty"`
	FailureReason    string         `json:"failureReason,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// toPayment renders p. The client secret is only included while the payment
// is pending, which is when the browser needs it.
func toPayment(p *payment.Payment) paymentResponse {
	resp := paymentResponse{
		ID:               p.ID,
		TableID:          p.TableID,
		PersonalOrderIDs: p.PersonalOrderIDs,
		Subtotal:         money(p.Subtotal),
		Tip:              money(p.Tip),
		Amount:           money(p.Amount),
		Currency:         p.Currency,
		Status:           p.Status,
		FailureReason:    p.FailureReason,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.Status == payment.StatusPending {
		resp.ClientSecret = p.ClientSecret
	}
	return resp
}

type waiterCallResponse struct {
	ID             string     `json:"id"`
	TableID        string     `json:"tableId"`
	Note           string     `json:"note,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
}

func toWaiterCall(c *waiter.Call) waiterCallResponse {
	return waiterCallResponse{
		ID:             c.ID,
		TableID:        c.TableID,
		Note:           c.Note,
		CreatedAt:      c.CreatedAt,
		AcknowledgedAt: c.AcknowledgedAt,
	}
}
