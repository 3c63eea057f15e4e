package funding

import (
	"errors"
	"testing"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
)

func TestWithdrawalDetailsValidate(t *testing.T) {
	bank := WithdrawalDetails{BankName: "HDFC Bank", AccountNumber: "50100012345678", IFSC: "hdfc0001234", HolderName: "R Sharma"}

	cases := []struct {
		name string
		in   WithdrawalDetails
		ok   bool
	}{
		{"upi", WithdrawalDetails{UPIID: "rs@okhdfc"}, true},
		{"bank", bank, true},
		{"empty", WithdrawalDetails{}, false},
		{"upi without handle", WithdrawalDetails{UPIID: "rsokhdfc"}, false},
		{"both", WithdrawalDetails{UPIID: "rs@okhdfc", BankName: "HDFC"}, false},
		{"bad ifsc", WithdrawalDetails{BankName: "HDFC", AccountNumber: "50100012345678", IFSC: "HDFC1234", HolderName: "R"}, false},
		{"non numeric account", WithdrawalDetails{BankName: "HDFC", AccountNumber: "5010-0012", IFSC: "HDFC0001234", HolderName: "R"}, false},
		{"missing holder", WithdrawalDetails{BankName: "HDFC", AccountNumber: "50100012345678", IFSC: "HDFC0001234"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.in
			d.normalize()
			err := d.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
