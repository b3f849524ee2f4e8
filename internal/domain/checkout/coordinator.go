// Package checkout implements the three step checkout flow.
//
// A Coordinator holds the step payloads of one browser session. Forward
// transitions are gated on the current step validating; backward transitions
// are always allowed. Submit turns the payloads and cart contents into an
// order and admits one in-flight submission at a time.
package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/prefab-storefront/internal/domain/cart"
	"github.com/xenking/prefab-storefront/internal/domain/customer"
	"github.com/xenking/prefab-storefront/internal/domain/notify"
	"github.com/xenking/prefab-storefront/internal/domain/order"
)

var (
	// ErrAuthRequired is returned by Submit when nobody is signed in.
	ErrAuthRequired = errors.New("authentication required")
	// ErrSubmitInFlight is returned by Submit while a previous submission is
	// still pending.
	ErrSubmitInFlight = errors.New("order submission already in progress")
	// ErrNotFinalStep is returned by Submit outside the contract step.
	ErrNotFinalStep = errors.New("checkout is not at the final step")
	// ErrEmptyCart is returned by Submit when there is nothing to order.
	ErrEmptyCart = errors.New("cart is empty")
)

// State is a snapshot of the checkout.
type State struct {
	CurrentStep Step         `json:"currentStep"`
	Customer    CustomerInfo `json:"customerInfo"`
	Payment     PaymentInfo  `json:"paymentInfo"`
	Contract    ContractInfo `json:"contractInfo"`
}

// Cart is the part of the cart store checkout reads and clears.
type Cart interface {
	Items() []cart.Item
	SelectedItems() []cart.Item
	HasSelection() bool
	RemoveOrdered(ordered []cart.Item)
}

// Identity exposes the signed-in customer.
type Identity interface {
	Customer() (customer.Customer, bool)
}

// OrderPlacer creates orders in the external store.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
}

// Options configure a Coordinator. Every field is optional.
type Options struct {
	Toaster notify.Toaster
	Logger  *zap.Logger
	Meter   metric.Meter
}

// Coordinator is the checkout state machine of one session. It is safe for
// concurrent use.
type Coordinator struct {
	orders    OrderPlacer
	validator *Validator
	toaster   notify.Toaster
	lg        *zap.Logger
	submitted metric.Int64Counter

	mu         sync.Mutex
	state      State
	submitting bool
}

// New creates a Coordinator at step 1.
func New(orders OrderPlacer, v *Validator, opts Options) (*Coordinator, error) {
	if v == nil {
		v = NewValidator()
	}
	c := &Coordinator{
		orders:    orders,
		validator: v,
		toaster:   opts.Toaster,
		lg:        opts.Logger,
		state:     State{CurrentStep: StepCustomer},
	}
	if c.toaster == nil {
		c.toaster = notify.Discard
	}
	if c.lg == nil {
		c.lg = zap.NewNop()
	}

	meter := opts.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("checkout")
	}
	counter, err := meter.Int64Counter("checkout.orders.submitted",
		metric.WithDescription("Checkout submissions by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create submitted counter")
	}
	c.submitted = counter

	return c, nil
}

// State returns a copy of the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Progress is the completed share of the flow in percent.
func (c *Coordinator) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return float64(c.state.CurrentStep) / TotalSteps * 100
}

// Submitting reports whether a submission is in flight.
func (c *Coordinator) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.submitting
}

// Validate checks the payload of the current step.
func (c *Coordinator) Validate() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.validator.Validate(c.state.CurrentStep, c.state)
}

// Next moves to the following step if the current one validates. The result
// explains a withheld transition. Next at the last step only validates.
func (c *Coordinator) Next() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.validator.Validate(c.state.CurrentStep, c.state)
	if res.OK && c.state.CurrentStep < StepContract {
		c.state.CurrentStep++
	}
	return res
}

// Previous moves back one step. It is a no-op at step 1.
func (c *Coordinator) Previous() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.CurrentStep > StepCustomer {
		c.state.CurrentStep--
	}
}

// UpdateCustomer merges p into the step 1 payload.
func (c *Coordinator) UpdateCustomer(p CustomerPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.apply(&c.state.Customer)
}

// UpdatePayment merges p into the step 2 payload.
func (c *Coordinator) UpdatePayment(p PaymentPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.apply(&c.state.Payment)
}

// UpdateContract merges p into the step 3 payload.
func (c *Coordinator) UpdateContract(p ContractPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.apply(&c.state.Contract)
}

// Reset discards all payloads and returns to step 1.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = State{CurrentStep: StepCustomer}
}

// Submit places the order for the cart. When lines are selected only those
// are ordered. On success the ordered lines leave the cart and the checkout
// resets; on failure the checkout stays at the contract step.
func (c *Coordinator) Submit(ctx context.Context, crt Cart, who Identity) (*order.Order, error) {
	req, ordered, err := c.begin(crt, who)
	if err != nil {
		return nil, err
	}

	// The create call is not abandoned when the caller goes away.
	o, err := c.orders.PlaceOrder(context.WithoutCancel(ctx), req)

	c.mu.Lock()
	c.submitting = false
	if err != nil {
		c.mu.Unlock()
		c.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
		c.lg.Warn("Order submission failed", zap.String("user_id", req.UserID), zap.Error(err))
		c.toaster.Toast(notify.Toast{
			Title:       "Order Failed",
			Description: "There was a problem processing your order. Please try again.",
			Variant:     notify.VariantDestructive,
		})
		return nil, errors.Wrap(err, "place order")
	}
	c.state = State{CurrentStep: StepCustomer}
	c.mu.Unlock()

	crt.RemoveOrdered(ordered)

	c.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "placed")))
	c.lg.Info("Order placed", zap.String("order_id", o.ID), zap.String("user_id", o.UserID))
	c.toaster.Toast(notify.Toast{
		Title:       "Order placed successfully!",
		Description: fmt.Sprintf("Your order #%s has been received.", order.ShortID(o.ID)),
		Variant:     notify.VariantDefault,
	})
	return o, nil
}

// begin checks every submit precondition and marks the submission as in
// flight. It returns the cart lines being ordered.
func (c *Coordinator) begin(crt Cart, who Identity) (order.PlaceOrderRequest, []cart.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitting {
		return order.PlaceOrderRequest{}, nil, ErrSubmitInFlight
	}
	if c.state.CurrentStep != StepContract {
		return order.PlaceOrderRequest{}, nil, ErrNotFinalStep
	}
	for step := StepCustomer; step <= StepContract; step++ {
		if res := c.validator.Validate(step, c.state); !res.OK {
			return order.PlaceOrderRequest{}, nil, &ValidationError{Step: step, Result: res}
		}
	}

	cust, ok := who.Customer()
	if !ok {
		c.toaster.Toast(notify.Toast{
			Title:       "Authentication Required",
			Description: "Please log in to place an order.",
			Variant:     notify.VariantDestructive,
		})
		return order.PlaceOrderRequest{}, nil, ErrAuthRequired
	}

	items := crt.Items()
	if crt.HasSelection() {
		items = crt.SelectedItems()
	}
	if len(items) == 0 {
		return order.PlaceOrderRequest{}, nil, ErrEmptyCart
	}

	lines := make([]order.LineRequest, len(items))
	for i, it := range items {
		lines[i] = order.LineRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	info := c.state.Customer
	email := info.Email
	if email == "" {
		email = cust.Email
	}

	c.submitting = true
	return order.PlaceOrderRequest{
		UserID:          cust.ID,
		CustomerName:    info.FirstName + " " + info.LastName,
		CustomerEmail:   email,
		ShippingAddress: info.ShippingAddress(),
		City:            info.City,
		State:           info.Province,
		ZipCode:         info.PostalCode,
		Lines:           lines,
	}, items, nil
}
