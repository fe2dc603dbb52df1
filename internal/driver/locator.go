package driver

import "fmt"

// A Locator maps logical fields to page queries. A query is either a CSS
// selector or "text=<substring>", which resolves to the smallest element
// whose visible text (or value, for inputs) contains the substring.
//
// The portal has been automated with two addressing styles over its life:
// attribute selectors keyed on the form's name/type attributes, and
// placeholder/visible-text lookup that survives attribute churn. Both are
// kept as strategies selectable via form.locator_strategy.
type Locator interface {
	Name() string
	Query(f Field) (string, error)
	// ConfirmationQueries lists the known confirmation-number input
	// locations, in probe order.
	ConfirmationQueries() []string
}

// StrategyFor returns the locator registered under the given name.
func StrategyFor(name string) (Locator, error) {
	switch name {
	case "css", "":
		return cssLocator{}, nil
	case "label":
		return labelLocator{}, nil
	default:
		return nil, fmt.Errorf("unknown locator strategy: %q", name)
	}
}

var cssQueries = map[Field]string{
	FieldLoginUser:   `input[type="text"]`,
	FieldLoginPass:   `input[type="password"]`,
	FieldLoginSubmit: `text=Login`,

	FieldSearchBox: `input[placeholder*="keyword"], input[placeholder*="ชื่อโปรแกรม"]`,
	FieldSearchGo:  `text=Go!`,
	FieldNextPage:  `text=Next`,

	FieldDateStart:   `input[name="start"]`,
	FieldDateEnd:     `input[name="end"]`,
	FieldProgram:     `select[name="package"]`,
	FieldPeriod:      `select[name="period"]`,
	FieldPaymentDate: `input[name="payment_date"]`,
	FieldDescription: `input[name="description[]"]`,
	FieldChargeType:  `select[name="rate_type[]"]`,
	FieldAmount:      `input[name="price[]"]`,
	FieldRemark:      `textarea[name="remark"]`,

	FieldCompanyToggle:        `text=เพิ่มในค่าใช้จ่ายบริษัท`,
	FieldCompanyAgent:         `select[name="charges[id_company_charges_agent]"]`,
	FieldCompanyPaymentMethod: `select[name="charges[payment_type]"]`,
	FieldCompanyAmount:        `input[name="charges[amount]"]`,
	FieldCompanyPaymentType:   `select[name="charges[id_company_charges_type]"]`,
	FieldCompanyPaymentDate:   `input[name="charges[payment_date]"]`,
	FieldCompanyPeriod:        `input[name="charges[period]"]`,
	FieldCompanyRemark:        `textarea[name="charges[remark]"]`,

	FieldSubmit: `input[type="submit"][value="Save"]`,
}

// cssLocator addresses fields by the form's name/type attributes.
type cssLocator struct{}

func (cssLocator) Name() string { return "css" }

func (cssLocator) Query(f Field) (string, error) {
	q, ok := cssQueries[f]
	if !ok {
		return "", fmt.Errorf("css locator: no query for field %s", f)
	}
	return q, nil
}

func (cssLocator) ConfirmationQueries() []string {
	return []string{
		`input[name*="charges_no"]`,
		`input[name*="expense_no"]`,
		`input[placeholder*="C20"]`,
		`input#charges_no`,
		`input[name="charges_no"]`,
	}
}

// labelLocator addresses fields by placeholder and visible text where the
// portal exposes them, falling back to attribute selectors for the selects
// (which render as bootstrap-select widgets without placeholders).
type labelLocator struct{}

func (labelLocator) Name() string { return "label" }

func (labelLocator) Query(f Field) (string, error) {
	switch f {
	case FieldLoginUser:
		return `input[placeholder*="Username"], input[type="text"]`, nil
	case FieldLoginPass:
		return `input[placeholder*="Password"], input[type="password"]`, nil
	case FieldSearchBox:
		return `input[placeholder*="keyword"], input[placeholder*="ชื่อโปรแกรม"], input[placeholder*="รหัสทัวร์"]`, nil
	case FieldSubmit:
		return `text=Save`, nil
	}
	q, ok := cssQueries[f]
	if !ok {
		return "", fmt.Errorf("label locator: no query for field %s", f)
	}
	return q, nil
}

func (labelLocator) ConfirmationQueries() []string {
	return []string{
		`input[name*="charges_no"]`,
		`input[name*="expense_no"]`,
		`input[placeholder*="C20"]`,
		`input[placeholder*="เลขที่"]`,
		`input#charges_no`,
		`input[name="charges_no"]`,
	}
}
