package funding

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
)

// WithdrawalDetails is where withdrawn money is sent: either a UPI id or a
// complete bank account.
type WithdrawalDetails struct {
	UPIID         string `json:"upi_id,omitempty" validate:"omitempty,max=64,contains=@"`
	BankName      string `json:"bank_name,omitempty" validate:"omitempty,max=100"`
	AccountNumber string `json:"account_number,omitempty" validate:"omitempty,numeric,min=6,max=20"`
	IFSC          string `json:"ifsc,omitempty" validate:"omitempty,ifsc"`
	HolderName    string `json:"holder_name,omitempty" validate:"omitempty,max=100"`
}

var ifscPattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ifsc", func(fl validator.FieldLevel) bool {
		return ifscPattern.MatchString(fl.Field().String())
	})
	return v
}

func (d WithdrawalDetails) hasBank() bool {
	return d.BankName != "" || d.AccountNumber != "" || d.IFSC != "" || d.HolderName != ""
}

func (d *WithdrawalDetails) normalize() {
	d.UPIID = strings.TrimSpace(d.UPIID)
	d.BankName = strings.TrimSpace(d.BankName)
	d.AccountNumber = strings.TrimSpace(d.AccountNumber)
	d.IFSC = strings.ToUpper(strings.TrimSpace(d.IFSC))
	d.HolderName = strings.TrimSpace(d.HolderName)
}

// Validate checks field formats and that exactly one complete destination is
// present.
func (d WithdrawalDetails) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: withdrawal details: %s", apperr.ErrValidation, describe(err))
	}
	switch {
	case d.UPIID != "" && d.hasBank():
		return apperr.Validationf("withdrawal details: give either a UPI id or bank details, not both")
	case d.UPIID != "":
		return nil
	case !d.hasBank():
		return apperr.Validationf("withdrawal details: a UPI id or bank details are required")
	}
	var missing []string
	for name, v := range map[string]string{
		"bank_name":      d.BankName,
		"account_number": d.AccountNumber,
		"ifsc":           d.IFSC,
		"holder_name":    d.HolderName,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return apperr.Validationf("withdrawal details: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
