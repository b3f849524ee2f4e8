package checkout_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/prefab-storefront/internal/domain/cart"
	"github.com/xenking/prefab-storefront/internal/domain/checkout"
	"github.com/xenking/prefab-storefront/internal/domain/customer"
	"github.com/xenking/prefab-storefront/internal/domain/notify"
	"github.com/xenking/prefab-storefront/internal/domain/order"
	"github.com/xenking/prefab-storefront/internal/domain/product"
)

type identity struct {
	c *customer.Customer
}

func (i *identity) Customer() (customer.Customer, bool) {
	if i.c == nil {
		return customer.Customer{}, false
	}
	return *i.c, true
}

type placer struct {
	fail   bool
	placed []order.PlaceOrderRequest
}

func (p *placer) PlaceOrder(_ context.Context, req order.PlaceOrderRequest) (*order.Order, error) {
	if p.fail {
		return nil, errors.New("orders table unavailable")
	}
	p.placed = append(p.placed, req)
	return &order.Order{ID: fmt.Sprintf("order-%04d-0000", len(p.placed)), UserID: req.UserID}, nil
}

type checkoutTestContext struct {
	catalog   map[string]product.Product
	cart      *cart.Store
	who       *identity
	orders    *placer
	toasts    []notify.Toast
	flow      *checkout.Coordinator
	lastNext  checkout.Result
	submitErr error
}

func (c *checkoutTestContext) reset() error {
	c.catalog = make(map[string]product.Product)
	c.cart = cart.NewStore()
	c.who = &identity{}
	c.orders = &placer{}
	c.toasts = nil
	c.lastNext = checkout.Result{}
	c.submitErr = nil

	flow, err := checkout.New(c.orders, checkout.NewValidator(), checkout.Options{
		Toaster: notify.ToasterFunc(func(t notify.Toast) { c.toasts = append(c.toasts, t) }),
	})
	if err != nil {
		return err
	}
	c.flow = flow
	return nil
}

func str(s string) *string { return &s }

func (c *checkoutTestContext) theCatalogHasPriced(id string, price int) error {
	c.catalog[id] = product.Product{ID: id, Name: id, Price: decimal.NewFromInt(int64(price))}
	return nil
}

func (c *checkoutTestContext) iAmSignedInAs(id string) error {
	c.who.c = &customer.Customer{ID: id, Email: id + "@example.ph", FirstName: "Ana"}
	return nil
}

func (c *checkoutTestContext) iAmSignedOut() error {
	c.who.c = nil
	return nil
}

func (c *checkoutTestContext) myCartHolds(n1 int, id1 string, n2 int, id2 string) error {
	for _, line := range []struct {
		n  int
		id string
	}{{n1, id1}, {n2, id2}} {
		p, ok := c.catalog[line.id]
		if !ok {
			return fmt.Errorf("unknown product %q", line.id)
		}
		c.cart.AddToCart(p, line.n)
	}
	return nil
}

func (c *checkoutTestContext) iSelect(id string) error {
	c.cart.Select(id, true)
	return nil
}

func (c *checkoutTestContext) orderCreationFails() error {
	c.orders.fail = true
	return nil
}

func (c *checkoutTestContext) customerPatch() checkout.CustomerPatch {
	return checkout.CustomerPatch{
		FirstName:  str("Ana"),
		LastName:   str("Cruz"),
		Email:      str("ana@example.ph"),
		Phone:      str("09171234567"),
		Address1:   str("12 Mabini St"),
		City:       str("Cebu City"),
		Province:   str("Cebu"),
		PostalCode: str("6000"),
		Country:    str("Philippines"),
	}
}

func (c *checkoutTestContext) iFillInMyCustomerDetailsWithoutAPhone() error {
	p := c.customerPatch()
	p.Phone = nil
	c.flow.UpdateCustomer(p)
	return nil
}

func (c *checkoutTestContext) iCompleteEveryCheckoutStep() error {
	c.flow.UpdateCustomer(c.customerPatch())
	if res := c.flow.Next(); !res.OK {
		return fmt.Errorf("customer step rejected: %+v", res.Errors)
	}
	c.flow.UpdatePayment(checkout.PaymentPatch{
		PaymentMethod:    str(checkout.PaymentBankTransfer),
		DeliveryLocation: str("Lot 4, Talisay"),
	})
	if res := c.flow.Next(); !res.OK {
		return fmt.Errorf("payment step rejected: %+v", res.Errors)
	}
	agree := true
	c.flow.UpdateContract(checkout.ContractPatch{AgreeToTerms: &agree, SignatureName: str("Ana Cruz")})
	return nil
}

func (c *checkoutTestContext) iGoToTheNextStep() error {
	c.lastNext = c.flow.Next()
	return nil
}

func (c *checkoutTestContext) iGoToThePreviousStep() error {
	c.flow.Previous()
	return nil
}

func (c *checkoutTestContext) iSubmitTheOrder() error {
	_, c.submitErr = c.flow.Submit(context.Background(), c.cart, c.who)
	return nil
}

func (c *checkoutTestContext) iAmAtStep(step int) error {
	if got := c.flow.State().CurrentStep; int(got) != step {
		return fmt.Errorf("expected step %d, got %d", step, got)
	}
	return nil
}

func (c *checkoutTestContext) theFieldIsReportedInvalid(field string) error {
	for _, fe := range c.lastNext.Errors {
		if fe.Field == field {
			return nil
		}
	}
	return fmt.Errorf("field %q not reported in %+v", field, c.lastNext.Errors)
}

func (c *checkoutTestContext) anOrderForLinesIsPlaced(lines int) error {
	if c.submitErr != nil {
		return fmt.Errorf("submit failed: %w", c.submitErr)
	}
	if len(c.orders.placed) != 1 {
		return fmt.Errorf("expected one order, got %d", len(c.orders.placed))
	}
	if got := len(c.orders.placed[0].Lines); got != lines {
		return fmt.Errorf("expected %d lines, got %d", lines, got)
	}
	return nil
}

func (c *checkoutTestContext) myCartIsEmpty() error {
	if !c.cart.IsEmpty() {
		return fmt.Errorf("cart still holds %d items", c.cart.TotalItems())
	}
	return nil
}

func (c *checkoutTestContext) myCartStillHolds(id string) error {
	if c.cart.Quantity(id) == 0 {
		return fmt.Errorf("cart lost %q", id)
	}
	return nil
}

func (c *checkoutTestContext) theSubmissionFails() error {
	if c.submitErr == nil {
		return errors.New("expected submit to fail")
	}
	return nil
}

func (c *checkoutTestContext) iSeeTheToast(title string) error {
	for _, t := range c.toasts {
		if t.Title == title {
			return nil
		}
	}
	return fmt.Errorf("no toast %q among %+v", title, c.toasts)
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		return ctx, tc.reset()
	})

	// Given steps
	ctx.Step(`^the catalog has "([^"]*)" priced (\d+)$`, tc.theCatalogHasPriced)
	ctx.Step(`^I am signed in as "([^"]*)"$`, tc.iAmSignedInAs)
	ctx.Step(`^I am signed out$`, tc.iAmSignedOut)
	ctx.Step(`^my cart holds (\d+) "([^"]*)" and (\d+) "([^"]*)"$`, tc.myCartHolds)
	ctx.Step(`^I select "([^"]*)"$`, tc.iSelect)
	ctx.Step(`^order creation fails$`, tc.orderCreationFails)
	ctx.Step(`^I fill in my customer details without a phone$`, tc.iFillInMyCustomerDetailsWithoutAPhone)
	ctx.Step(`^I complete every checkout step$`, tc.iCompleteEveryCheckoutStep)

	// When steps
	ctx.Step(`^I go to the next step$`, tc.iGoToTheNextStep)
	ctx.Step(`^I go to the previous step$`, tc.iGoToThePreviousStep)
	ctx.Step(`^I submit the order$`, tc.iSubmitTheOrder)

	// Then steps
	ctx.Step(`^I am at step (\d+)$`, tc.iAmAtStep)
	ctx.Step(`^the field "([^"]*)" is reported invalid$`, tc.theFieldIsReportedInvalid)
	ctx.Step(`^an order for (\d+) lines is placed$`, tc.anOrderForLinesIsPlaced)
	ctx.Step(`^my cart is empty$`, tc.myCartIsEmpty)
	ctx.Step(`^my cart still holds "([^"]*)"$`, tc.myCartStillHolds)
	ctx.Step(`^the submission fails$`, tc.theSubmissionFails)
	ctx.Step(`^I see the toast "([^"]*)"$`, tc.iSeeTheToast)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"testdata/checkout.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
