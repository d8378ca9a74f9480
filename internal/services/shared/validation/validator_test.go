package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleRequest struct {
	AccountID string `json:"accountId" validate:"required,account_id"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,phone_number"`
}

func TestValidateAccountID(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "account-1", false},
		{"underscores", "crm_tenant_42", false},
		{"empty", "", true},
		{"spaces", "bad id", true},
		{"symbols", "acc@1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(&sampleRequest{AccountID: tt.id})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	v := New()

	assert.NoError(t, v.ValidateStruct(&sampleRequest{AccountID: "a", Phone: "+55 (11) 99999-0000"}))
	assert.NoError(t, v.ValidateStruct(&sampleRequest{AccountID: "a", Phone: "12345678"}))
	assert.Error(t, v.ValidateStruct(&sampleRequest{AccountID: "a", Phone: "1234567"}))
	assert.Error(t, v.ValidateStruct(&sampleRequest{AccountID: "a", Phone: "1234567890123456"}))
}

func TestErrorMessageUsesJSONName(t *testing.T) {
	v := New()

	err := v.ValidateStruct(&sampleRequest{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accountId is required")
}
