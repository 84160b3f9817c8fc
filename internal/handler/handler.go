// Package handler exposes the ordering engine over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/tableside/internal/domain/auth"
	"github.com/xenking/tableside/internal/domain/cart"
	"github.com/xenking/tableside/internal/domain/feedback"
	"github.com/xenking/tableside/internal/domain/menu"
	"github.com/xenking/tableside/internal/domain/order"
	"github.com/xenking/tableside/internal/domain/payment"
	"github.com/xenking/tableside/internal/domain/pricing"
	"github.com/xenking/tableside/internal/domain/table"
	"github.com/xenking/tableside/internal/domain/tableorder"
	"github.com/xenking/tableside/internal/domain/tip"
	"github.com/xenking/tableside/internal/domain/waiter"
)

// CartService manages diner carts.
type CartService interface {
	Totals(ctx context.Context, key cart.Key, spec tip.Spec) (*cart.Cart, cart.Totals, error)
	AddLine(ctx context.Context, key cart.Key, menuItemID string, sel pricing.Selection) (*cart.Cart, *cart.Line, error)
	UpdateQuantity(ctx context.Context, key cart.Key, lineID string, quantity int) (*cart.Cart, error)
	RemoveLine(ctx context.Context, key cart.Key, lineID string) (*cart.Cart, error)
	Clear(ctx context.Context, key cart.Key) error
	Submit(ctx context.Context, key cart.Key, customerName string) (*tableorder.PersonalOrder, error)
	Checkout(ctx context.Context, key cart.Key, spec tip.Spec, paymentRef string) (*order.Order, error)
}

// TableOrderService reads and quotes table orders.
type TableOrderService interface {
	Get(ctx context.Context, tableID string) (*tableorder.TableOrder, error)
	Quote(ctx context.Context, tableID string, keys []string) (*tableorder.QuoteResult, error)
}

// OrderService places orders and moves them through the status flow.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	Advance(ctx context.Context, id string) (*order.Order, error)
	SetStatus(ctx context.Context, id string, status order.Status) (*order.Order, error)
}

// PaymentService creates and confirms payments.
type PaymentService interface {
	Create(ctx context.Context, req payment.CreateRequest) (*payment.Payment, error)
	Get(ctx context.Context, id string) (*payment.Payment, error)
	Sync(ctx context.Context, id string) (*payment.Payment, error)
	Confirm(ctx context.Context, c payment.Confirmation) (*payment.Payment, error)
}

// FeedbackService records diner feedback.
type FeedbackService interface {
	Submit(ctx context.Context, tableID string, rating int, comment string) (*feedback.Feedback, error)
}

// WaiterService handles call-waiter requests.
type WaiterService interface {
	Call(ctx context.Context, tableID, note string) (*waiter.Call, bool, error)
	ListOpen(ctx context.Context) ([]waiter.Call, error)
	Acknowledge(ctx context.Context, id string) (*waiter.Call, error)
}

// WebhookParser verifies gateway callbacks. A nil confirmation means the
// event carries no payment outcome.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (string, *payment.Confirmation, error)
}

// EventGuard remembers processed webhook events.
type EventGuard interface {
	CheckAndMark(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// Deps holds the collaborators of the HTTP layer. Webhooks and Events may be
// nil when payments are not configured.
type Deps struct {
	Menu        menu.Repository
	Tables      table.Repository
	APIKeys     auth.Repository
	Carts       CartService
	TableOrders TableOrderService
	Orders      OrderService
	Payments    PaymentService
	Feedback    FeedbackService
	Waiter      WaiterService
	Webhooks    WebhookParser
	Events      EventGuard
}

// Handler serves the /api routes.
type Handler struct {
	Deps
	pepper []byte
}

// New creates a Handler. pepper is the HMAC key staff API keys are hashed
// with.
func New(deps Deps, pepper []byte) *Handler {
	return &Handler{Deps: deps, pepper: pepper}
}

// Register mounts the API on r. middlewares apply to /api routes only.
func (h *Handler) Register(r chi.Router, middlewares ...func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Use(middlewares...)
		r.Get("/tips", h.getTipPresets)

		r.Route("/menu", func(r chi.Router) {
			r.Get("/", h.listMenu)
			r.Get("/{itemID}", h.getMenuItem)
			r.Post("/{itemID}/price", h.previewPrice)
		})

		r.Route("/tables/{tableID}", func(r chi.Router) {
			r.Use(h.requireTable)
			r.Get("/", h.getTable)

			r.Route("/customers/{customerID}/cart", func(r chi.Router) {
				r.Get("/", h.getCart)
				r.Delete("/", h.clearCart)
				r.Post("/lines", h.addCartLine)
				r.Patch("/lines/{lineID}", h.updateCartLine)
				r.Delete("/lines/{lineID}", h.removeCartLine)
				r.Post("/submit", h.submitCart)
				r.Post("/checkout", h.checkoutCart)
			})

			r.Get("/order", h.getTableOrder)
			r.Post("/order/quote", h.quoteTableOrder)
			r.Post("/payments", h.createPayment)
			r.Post("/feedback", h.submitFeedback)
			r.Post("/waiter-calls", h.callWaiter)
		})

		r.Route("/payments/{paymentID}", func(r chi.Router) {
			r.Get("/", h.getPayment)
			r.Post("/sync", h.syncPayment)
		})
		r.Post("/webhooks/stripe", h.stripeWebhook)

		r.Post("/orders", h.placeOrder)
		r.Get("/orders/{orderID}", h.getOrder)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAPIKey(auth.ScopeKitchen))
			r.Post("/orders/{orderID}/advance", h.advanceOrder)
			r.Put("/orders/{orderID}/status", h.setOrderStatus)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.requireAPIKey(auth.ScopeWaiter))
			r.Get("/waiter-calls", h.listWaiterCalls)
			r.Post("/waiter-calls/{callID}/ack", h.acknowledgeWaiterCall)
		})
	})
}

// RoutePattern returns the chi route pattern matched for r.
func RoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}
