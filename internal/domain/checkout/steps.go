package checkout

import (
	"regexp"
	"strings"
)

// Step is a checkout stage. Valid steps are 1 to TotalSteps.
type Step int

const (
	StepCustomer Step = iota + 1
	StepPayment
	StepContract
)

// TotalSteps is the number of checkout stages.
const TotalSteps = 3

// Title is the heading of the step.
func (s Step) Title() string {
	switch s {
	case StepCustomer:
		return "Customer Information"
	case StepPayment:
		return "Payment & Location"
	case StepContract:
		return "Contract & Finalize"
	default:
		return ""
	}
}

// Valid reports whether s is one of the checkout steps.
func (s Step) Valid() bool {
	return s >= StepCustomer && s <= StepContract
}

// Payment methods accepted at step 2.
const (
	PaymentBankTransfer   = "bank_transfer"
	PaymentGCash          = "gcash"
	PaymentCreditCard     = "credit_card"
	PaymentCashOnDelivery = "cash_on_delivery"
)

// CustomerInfo is the step 1 payload: personal and delivery details.
type CustomerInfo struct {
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,ph_mobile"`
	Address1   string `json:"address1" validate:"required"`
	Address2   string `json:"address2"`
	City       string `json:"city" validate:"required"`
	Province   string `json:"province" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Notes      string `json:"notes"`
}

// ShippingAddress joins both address lines.
func (c CustomerInfo) ShippingAddress() string {
	if c.Address2 == "" {
		return c.Address1
	}
	return c.Address1 + ", " + c.Address2
}

// PaymentInfo is the step 2 payload: payment method and delivery site.
type PaymentInfo struct {
	PaymentMethod     string   `json:"paymentMethod" validate:"required,oneof=bank_transfer gcash credit_card cash_on_delivery"`
	ProofOfPaymentURL string   `json:"proofOfPaymentUrl" validate:"omitempty,url"`
	DeliveryLocation  string   `json:"deliveryLocation" validate:"required"`
	Latitude          *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude         *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	SiteNotes         string   `json:"siteNotes"`
}

// ContractInfo is the step 3 payload: contract acceptance and signature.
type ContractInfo struct {
	AgreeToTerms  bool   `json:"agreeToTerms" validate:"required"`
	SignatureName string `json:"signatureName" validate:"required,min=2"`
	Notes         string `json:"notes"`
}

// CustomerPatch carries the fields of a step 1 change; nil fields are left
// untouched.
type CustomerPatch struct {
	FirstName  *string `json:"firstName"`
	LastName   *string `json:"lastName"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	Address1   *string `json:"address1"`
	Address2   *string `json:"address2"`
	City       *string `json:"city"`
	Province   *string `json:"province"`
	PostalCode *string `json:"postalCode"`
	Country    *string `json:"country"`
	Notes      *string `json:"notes"`
}

func (p CustomerPatch) apply(c *CustomerInfo) {
	set(&c.FirstName, p.FirstName)
	set(&c.LastName, p.LastName)
	set(&c.Email, p.Email)
	set(&c.Phone, p.Phone)
	set(&c.Address1, p.Address1)
	set(&c.Address2, p.Address2)
	set(&c.City, p.City)
	set(&c.Province, p.Province)
	set(&c.PostalCode, p.PostalCode)
	set(&c.Country, p.Country)
	set(&c.Notes, p.Notes)
}

// PaymentPatch carries the fields of a step 2 change.
type PaymentPatch struct {
	PaymentMethod     *string  `json:"paymentMethod"`
	ProofOfPaymentURL *string  `json:"proofOfPaymentUrl"`
	DeliveryLocation  *string  `json:"deliveryLocation"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	SiteNotes         *string  `json:"siteNotes"`
}

func (p PaymentPatch) apply(pi *PaymentInfo) {
	set(&pi.PaymentMethod, p.PaymentMethod)
	set(&pi.ProofOfPaymentURL, p.ProofOfPaymentURL)
	set(&pi.DeliveryLocation, p.DeliveryLocation)
	set(&pi.SiteNotes, p.SiteNotes)
	if p.Latitude != nil {
		v := *p.Latitude
		pi.Latitude = &v
	}
	if p.Longitude != nil {
		v := *p.Longitude
		pi.Longitude = &v
	}
}

// ContractPatch carries the fields of a step 3 change.
type ContractPatch struct {
	AgreeToTerms  *bool   `json:"agreeToTerms"`
	SignatureName *string `json:"signatureName"`
	Notes         *string `json:"notes"`
}

func (p ContractPatch) apply(c *ContractInfo) {
	if p.AgreeToTerms != nil {
		c.AgreeToTerms = *p.AgreeToTerms
	}
	set(&c.SignatureName, p.SignatureName)
	set(&c.Notes, p.Notes)
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = Sanitize(*v)
	}
}

var (
	angleBrackets    = strings.NewReplacer("<", "", ">", "")
	scriptProtocol   = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerAttr = regexp.MustCompile(`(?i)on\w+=`)
)

// Sanitize strips angle brackets, script URLs and inline event handler
// attributes from free text, then trims it.
func Sanitize(s string) string {
	s = angleBrackets.Replace(s)
	s = scriptProtocol.ReplaceAllString(s, "")
	s = eventHandlerAttr.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
