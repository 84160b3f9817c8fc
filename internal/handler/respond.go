package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

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

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// requestError is a malformed or invalid request body.
type requestError struct {
	msg     string
	details map[string]string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// decodeJSON decodes the body into dst, rejecting unknown fields, and runs
// the validate tags.
func decodeJSON(r *http.Request, dst any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &requestError{msg: "invalid request body", details: map[string]string{"body": err.Error()}}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errors.Wrap(err, "validate request")
		}
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Namespace()] = validationMessage(fe)
		}
		return &requestError{msg: "validation failed", details: details}
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}

type errorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes the error body. Unmapped
// errors are logged and reported as 500 without their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	resp := errorResponse{Code: status, Message: msg}

	var (
		reqErr *requestError
		held   *payment.HeldError
	)
	switch {
	case errors.As(err, &reqErr):
		resp.Details = reqErr.details
	case errors.As(err, &held):
		resp.Details = map[string]string{"paymentId": held.PaymentID}
	}

	lg := zctx.From(r.Context())
	if status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) (int, string) {
	var (
		reqErr       *requestError
		selErr       *pricing.SelectionInvalidError
		missingItem  *order.MenuItemNotFoundError
		unavailable  *order.ItemUnavailableError
		cartUnavail  *cart.ItemUnavailableError
		mismatch     *order.PriceMismatchError
		unknownKey   *tableorder.UnknownPersonalOrderError
		gatewayError *payment.GatewayError
	)

	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.msg
	case errors.As(err, &selErr),
		errors.As(err, &missingItem),
		errors.As(err, &unavailable),
		errors.As(err, &cartUnavail),
		errors.As(err, &mismatch),
		errors.As(err, &unknownKey):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, tip.ErrInvalidTip),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, cart.ErrCustomerNameRequired),
		errors.Is(err, tableorder.ErrNoSelection),
		errors.Is(err, tableorder.ErrEmptyPersonalOrder):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, feedback.ErrInvalidRating),
		errors.Is(err, feedback.ErrCommentTooLong),
		errors.Is(err, waiter.ErrNoteTooLong),
		errors.Is(err, payment.ErrNothingToPay):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, menu.ErrNotFound),
		errors.Is(err, table.ErrNotFound),
		errors.Is(err, tableorder.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, waiter.ErrNotFound),
		errors.Is(err, cart.ErrLineNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, tableorder.ErrConcurrentModification),
		errors.Is(err, cart.ErrConflict),
		errors.Is(err, order.ErrIdempotencyConflict),
		errors.Is(err, payment.ErrAlreadyInPayment):
		return http.StatusConflict, err.Error()
	case errors.As(err, &gatewayError):
		return http.StatusBadGateway, "payment gateway error"
	case errors.Is(err, payment.ErrPaymentFailed):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, payment.ErrPaymentsDisabled):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
