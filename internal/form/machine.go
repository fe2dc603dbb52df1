// Package form drives the charge-creation form as a strict state machine.
// Transitions are sequential with no backtracking; the first failing step
// puts the machine in StateFailed and the entry is reported as-is. The
// dependent selects (program, then period) are repopulated asynchronously
// by the portal after each upstream change, which is why every transition
// is followed by a settle pause and why the date window is widened first.
package form

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tourcharge/internal/config"
	"tourcharge/internal/driver"
	"tourcharge/internal/logging"
	"tourcharge/internal/types"
)

// State identifies where in the fill sequence the machine is.
type State string

const (
	StateStart            State = "Start"
	StateRangeSet         State = "RangeSet"
	StateProgramSelected  State = "ProgramSelected"
	StateTourCodeSelected State = "TourCodeSelected"
	StateFieldsFilled     State = "FieldsFilled"
	StateCompanyFilled    State = "CompanyFilled"
	StateSubmitted        State = "Submitted"
	StateSuccess          State = "Success"
	StateFailed           State = "Failed"
)

var (
	// ErrProgramNotFound means the program select has no option containing
	// the resolved program code. The resolution was stale or wrong.
	ErrProgramNotFound = errors.New("program not found")

	// ErrTourCodeNotFound means the program resolved but its repopulated
	// period list has no option for this departure.
	ErrTourCodeNotFound = errors.New("tour code not found")

	// ErrSubmitControlNotFound means no submit control of any kind exists
	// on the page.
	ErrSubmitControlNotFound = errors.New("submit button not found")
)

// Machine fills and submits the charge form for one entry. It is not safe
// for concurrent use; the batch orchestrator runs entries sequentially on
// one machine.
type Machine struct {
	cfg config.Config
	drv driver.Driver
	now func() time.Time

	state       State
	programName string
}

// New returns a Machine in StateStart.
func New(cfg config.Config, drv driver.Driver) *Machine {
	return &Machine{cfg: cfg, drv: drv, now: time.Now, state: StateStart}
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// ProgramName returns the full option label of the selected program, or
// the program code when the label was empty.
func (m *Machine) ProgramName() string { return m.programName }

// advance moves to next, or to StateFailed when the step errored.
func (m *Machine) advance(next State, err error) error {
	if err != nil {
		logging.FormError("%s: %v", m.state, err)
		m.state = StateFailed
		return err
	}
	logging.FormDebug("%s -> %s", m.state, next)
	m.state = next
	return nil
}

// Run walks the entry through the whole form. On return the machine is in
// StateSuccess or StateFailed; the error describes the failing step.
func (m *Machine) Run(ctx context.Context, entry types.Entry, programCode string) error {
	m.state = StateStart
	m.programName = ""

	timer := logging.StartTimer(logging.CategoryForm, "fill_and_submit")
	defer timer.Stop()
	logging.Form("filling form: %s | %s | %v | PAX: %d",
		entry.TourCode, programCode, entry.Amount, entry.Pax)

	if err := m.advance(StateRangeSet, m.setRange(ctx)); err != nil {
		return err
	}
	if err := m.advance(StateProgramSelected, m.selectProgram(ctx, programCode)); err != nil {
		return err
	}
	if err := m.advance(StateTourCodeSelected, m.selectTourCode(ctx, entry.TourCode)); err != nil {
		return err
	}
	if err := m.advance(StateFieldsFilled, m.fillFields(ctx, entry, programCode)); err != nil {
		return err
	}
	if m.cfg.Company.Enabled {
		if err := m.advance(StateCompanyFilled, m.fillCompany(ctx, entry)); err != nil {
			return err
		}
	}
	if err := m.advance(StateSubmitted, m.submit(ctx)); err != nil {
		return err
	}

	driver.Settle(ctx, m.cfg.Browser.SettleDelay())
	m.state = StateSuccess
	logging.Form("form complete for %s", entry.TourCode)
	return nil
}

// setRange opens the charge form and widens the date window. The program
// and period selects are filled by a range-filtered query, so a narrow
// default window can hide the target options entirely.
func (m *Machine) setRange(ctx context.Context) error {
	if err := m.drv.Navigate(ctx, m.cfg.Portal.ChargesURL()); err != nil {
		return fmt.Errorf("open charge form: %w", err)
	}
	driver.Settle(ctx, m.cfg.Browser.SettleDelay())

	if err := m.drv.SetValue(ctx, driver.FieldDateStart, m.cfg.Form.DateRangeStart); err != nil {
		return fmt.Errorf("set range start: %w", err)
	}
	if err := m.drv.SetValue(ctx, driver.FieldDateEnd, m.cfg.Form.DateRangeEnd); err != nil {
		return fmt.Errorf("set range end: %w", err)
	}
	driver.Settle(ctx, m.cfg.Browser.SettleDelay())
	return nil
}

func (m *Machine) selectProgram(ctx context.Context, programCode string) error {
	sel, err := m.drv.SelectByLabel(ctx, driver.FieldProgram, programCode)
	if err != nil {
		if errors.Is(err, driver.ErrOptionNotFound) || errors.Is(err, driver.ErrElementNotFound) {
			return fmt.Errorf("%w: %s", ErrProgramNotFound, programCode)
		}
		return fmt.Errorf("select program: %w", err)
	}
	m.programName = sel.Label
	if m.programName == "" {
		m.programName = programCode
	}
	logging.Form("program selected: %.50s", m.programName)
	driver.Settle(ctx, m.cfg.Browser.SettleDelay())
	return nil
}

func (m *Machine) selectTourCode(ctx context.Context, tourCode string) error {
	if _, err := m.drv.SelectByLabel(ctx, driver.FieldPeriod, tourCode); err != nil {
		if errors.Is(err, driver.ErrOptionNotFound) || errors.Is(err, driver.ErrElementNotFound) {
			return fmt.Errorf("%w: %s", ErrTourCodeNotFound, tourCode)
		}
		return fmt.Errorf("select tour code: %w", err)
	}
	logging.Form("tour code selected: %s", tourCode)
	driver.Settle(ctx, m.cfg.Browser.SettleDelay())
	return nil
}

func (m *Machine) fillFields(ctx context.Context, entry types.Entry, programCode string) error {
	paymentDate := m.paymentDate()
	desc := entry.Description
	if desc == "" {
		desc = m.cfg.Form.Description
	}

	if err := m.drv.SetValue(ctx, driver.FieldPaymentDate, paymentDate); err != nil {
		return fmt.Errorf("set payment date: %w", err)
	}
	if err := m.drv.SetValue(ctx, driver.FieldDescription, desc); err != nil {
		return fmt.Errorf("set description: %w", err)
	}
	if _, err := m.drv.SelectByLabel(ctx, driver.FieldChargeType, m.cfg.Form.ChargeType); err != nil {
		return fmt.Errorf("select charge type: %w", err)
	}
	if err := m.drv.SetValue(ctx, driver.FieldAmount, formatAmount(entry.Amount)); err != nil {
		return fmt.Errorf("set amount: %w", err)
	}

	remark := Remark(m.programName, programCode, entry.TourCode, entry.Pax, entry.Amount, desc, paymentDate)
	if err := m.drv.SetValue(ctx, driver.FieldRemark, remark); err != nil {
		return fmt.Errorf("set remark: %w", err)
	}
	return nil
}

// fillCompany mirrors the entry into the company expense sub-block. Some
// form variants do not render the toggle; the block is skipped there, the
// same as a clerk would.
func (m *Machine) fillCompany(ctx context.Context, entry types.Entry) error {
	if err := m.drv.Click(ctx, driver.FieldCompanyToggle); err != nil {
		if errors.Is(err, driver.ErrElementNotFound) {
			logging.FormWarn("company block unavailable, skipping")
			return nil
		}
		return fmt.Errorf("open company block: %w", err)
	}
	driver.Settle(ctx, m.cfg.Browser.SettleDelay())

	paymentDate := m.paymentDate()

	if err := m.drv.SelectByValue(ctx, driver.FieldCompanyAgent, m.cfg.Company.Value); err != nil {
		return fmt.Errorf("select company: %w", err)
	}
	logging.Form("selected company: %s", m.cfg.Company.Name)

	if _, err := m.drv.SelectByLabel(ctx, driver.FieldCompanyPaymentMethod, m.cfg.Company.PaymentMethod); err != nil {
		return fmt.Errorf("select payment method: %w", err)
	}
	if err := m.drv.SetValue(ctx, driver.FieldCompanyAmount, formatAmount(entry.Amount)); err != nil {
		return fmt.Errorf("set company amount: %w", err)
	}
	if _, err := m.drv.SelectByLabel(ctx, driver.FieldCompanyPaymentType, m.cfg.Company.PaymentType); err != nil {
		return fmt.Errorf("select payment type: %w", err)
	}
	if err := m.drv.SetValue(ctx, driver.FieldCompanyPaymentDate, paymentDate); err != nil {
		return fmt.Errorf("set company payment date: %w", err)
	}
	// The sub-block's period carries the tour code, not the program code.
	if err := m.drv.SetValue(ctx, driver.FieldCompanyPeriod, entry.TourCode); err != nil {
		return fmt.Errorf("set company period: %w", err)
	}

	remark := CompanyRemark(m.cfg.Company, entry.TourCode, entry.Amount, paymentDate)
	if err := m.drv.SetValue(ctx, driver.FieldCompanyRemark, remark); err != nil {
		return fmt.Errorf("set company remark: %w", err)
	}
	return nil
}

// submit clicks Save, falling back to any generic submit control when the
// primary button is not in the DOM.
func (m *Machine) submit(ctx context.Context) error {
	err := m.drv.ScrollAndClick(ctx, driver.FieldSubmit)
	if err == nil {
		logging.Form("clicked save button")
		return nil
	}
	if !errors.Is(err, driver.ErrElementNotFound) {
		return fmt.Errorf("click save: %w", err)
	}

	method, err := m.drv.SubmitForm(ctx)
	if err != nil {
		if errors.Is(err, driver.ErrNoSubmitControl) {
			return ErrSubmitControlNotFound
		}
		return fmt.Errorf("submit form: %w", err)
	}
	logging.Form("form submitted via %s", method)
	return nil
}

// paymentDate renders today plus the configured offset as DD/MM/YYYY.
func (m *Machine) paymentDate() string {
	return m.now().AddDate(0, 0, m.cfg.Form.PaymentOffsetDays).Format("02/01/2006")
}
