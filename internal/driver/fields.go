package driver

// Field names a logical control on the portal. The form layer speaks in
// fields only; how a field is addressed on the page is the locator's job.
type Field string

const (
	FieldLoginUser   Field = "login_user"
	FieldLoginPass   Field = "login_pass"
	FieldLoginSubmit Field = "login_submit"

	FieldSearchBox Field = "search_box"
	FieldSearchGo  Field = "search_go"
	FieldNextPage  Field = "next_page"

	FieldDateStart   Field = "date_start"
	FieldDateEnd     Field = "date_end"
	FieldProgram     Field = "program"
	FieldPeriod      Field = "period"
	FieldPaymentDate Field = "payment_date"
	FieldDescription Field = "description"
	FieldChargeType  Field = "charge_type"
	FieldAmount      Field = "amount"
	FieldRemark      Field = "remark"

	FieldCompanyToggle        Field = "company_toggle"
	FieldCompanyAgent         Field = "company_agent"
	FieldCompanyPaymentMethod Field = "company_payment_method"
	FieldCompanyAmount        Field = "company_amount"
	FieldCompanyPaymentType   Field = "company_payment_type"
	FieldCompanyPaymentDate   Field = "company_payment_date"
	FieldCompanyPeriod        Field = "company_period"
	FieldCompanyRemark        Field = "company_remark"

	FieldSubmit Field = "submit"
)

// Fields lists every known field, in form order. Used by locator tests to
// prove each strategy covers the whole surface.
func Fields() []Field {
	return []Field{
		FieldLoginUser, FieldLoginPass, FieldLoginSubmit,
		FieldSearchBox, FieldSearchGo, FieldNextPage,
		FieldDateStart, FieldDateEnd,
		FieldProgram, FieldPeriod,
		FieldPaymentDate, FieldDescription, FieldChargeType, FieldAmount, FieldRemark,
		FieldCompanyToggle, FieldCompanyAgent, FieldCompanyPaymentMethod,
		FieldCompanyAmount, FieldCompanyPaymentType, FieldCompanyPaymentDate,
		FieldCompanyPeriod, FieldCompanyRemark,
		FieldSubmit,
	}
}
