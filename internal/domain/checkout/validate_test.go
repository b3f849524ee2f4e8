package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPhilippineMobile(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"09171234567", true},
		{"+639171234567", true},
		{"9171234567", true},
		{"0917-123-4567", true},
		{"0917 123 4567", true},
		{"08171234567", false},
		{"0917123456", false},
		{"+6309171234567", false},
		{"", false},
		{"phone", false},
	}
	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPhilippineMobile(tt.phone))
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  Ana  ", "Ana"},
		{"<b>bold</b>", "bbold/b"},
		{"JavaScript:alert(1)", "alert(1)"},
		{"img onerror=steal() src=x", "img steal() src=x"},
		{"Lot 4, Talisay", "Lot 4, Talisay"},
		{"<a href=javascript:x onClick=y>", "a href=x y"},
		{"    ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), "input %q", tt.in)
	}
}

func TestValidator_CustomerStep(t *testing.T) {
	v := NewValidator()

	var st State
	validCustomer().apply(&st.Customer)
	require.True(t, v.Validate(StepCustomer, st).OK)

	st.Customer.Email = "not-an-email"
	st.Customer.Phone = "12345"
	res := v.Validate(StepCustomer, st)

	require.False(t, res.OK)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, FieldError{Field: "email", Tag: "email", Message: "Invalid email format"}, res.Errors[0])
	assert.Equal(t, "phone", res.Errors[1].Field)
	assert.Equal(t, "Enter a valid Philippine mobile number", res.Errors[1].Message)
}

func TestValidator_PaymentStep(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name  string
		patch PaymentPatch
		field string
	}{
		{"missing method", PaymentPatch{DeliveryLocation: ptr("site")}, "paymentMethod"},
		{"unknown method", PaymentPatch{PaymentMethod: ptr("barter"), DeliveryLocation: ptr("site")}, "paymentMethod"},
		{"missing location", PaymentPatch{PaymentMethod: ptr(PaymentCashOnDelivery)}, "deliveryLocation"},
		{"bad proof url", PaymentPatch{PaymentMethod: ptr(PaymentBankTransfer), DeliveryLocation: ptr("site"), ProofOfPaymentURL: ptr("nope")}, "proofOfPaymentUrl"},
		{"latitude out of range", PaymentPatch{PaymentMethod: ptr(PaymentGCash), DeliveryLocation: ptr("site"), Latitude: ptr(91.0)}, "latitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var st State
			tt.patch.apply(&st.Payment)

			res := v.Validate(StepPayment, st)

			require.False(t, res.OK)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, tt.field, res.Errors[0].Field)
		})
	}
}

func TestValidator_ContractStep(t *testing.T) {
	v := NewValidator()

	var st State
	res := v.Validate(StepContract, st)
	require.False(t, res.OK)
	assert.Equal(t, "agreeToTerms", res.Errors[0].Field)
	assert.Equal(t, "You must accept the terms to continue", res.Errors[0].Message)

	validContract().apply(&st.Contract)
	assert.True(t, v.Validate(StepContract, st).OK)
}

func TestValidator_UnknownStep(t *testing.T) {
	res := NewValidator().Validate(Step(7), State{})

	assert.False(t, res.OK)
	assert.Equal(t, "step", res.Errors[0].Field)
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Step: StepCustomer, Result: Result{Errors: []FieldError{{Field: "email"}, {Field: "phone"}}}}

	assert.Equal(t, "step Customer Information is invalid: email, phone", err.Error())
}
