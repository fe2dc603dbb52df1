package form

import (
	"context"
	"testing"
	"time"

	"tourcharge/internal/config"
	"tourcharge/internal/driver"
	"tourcharge/internal/driver/drivertest"
	"tourcharge/internal/types"

	"github.com/stretchr/testify/require"
)

var testEntry = types.Entry{
	TourCode: "2UCKG4NCKGFD251206",
	Pax:      10,
	Amount:   500,
}

const testProgramCode = "2UCKG-FD002"

func testConfig() config.Config {
	cfg := *config.DefaultConfig()
	cfg.Browser.SettleDelayMs = 1
	cfg.Company.Enabled = false
	return cfg
}

// chargeFormFake presets the dependent selects the way the live form
// populates them after the date window is widened.
func chargeFormFake() *drivertest.Fake {
	fake := drivertest.New()
	fake.Options[driver.FieldProgram] = []driver.Selection{
		{Value: "12", Label: "9ZHKT-AB001 : PHUKET 3 DAYS"},
		{Value: "77", Label: "2UCKG-FD002 : KRABI 4 DAYS 3 NIGHTS"},
	}
	fake.Options[driver.FieldPeriod] = []driver.Selection{
		{Value: "901", Label: "2UCKG4NCKGFD251206 (06/12/2025)"},
	}
	fake.Options[driver.FieldChargeType] = []driver.Selection{
		{Value: "3", Label: "เบ็ดเตล็ด"},
	}
	return fake
}

func fixedNow() time.Time {
	return time.Date(2025, 11, 29, 10, 0, 0, 0, time.UTC)
}

func TestRunFillsAndSubmits(t *testing.T) {
	cfg := testConfig()
	fake := chargeFormFake()

	m := New(cfg, fake)
	m.now = fixedNow

	require.NoError(t, m.Run(context.Background(), testEntry, testProgramCode))
	require.Equal(t, StateSuccess, m.State())

	require.Equal(t, 1, fake.NavCount(cfg.Portal.ChargesURL()))
	require.Equal(t, "01/01/2024", fake.Values[driver.FieldDateStart])
	require.Equal(t, "31/12/2026", fake.Values[driver.FieldDateEnd])
	require.Equal(t, "77", fake.Selected[driver.FieldProgram].Value)
	require.Equal(t, "901", fake.Selected[driver.FieldPeriod].Value)
	require.Equal(t, "2UCKG-FD002 : KRABI 4 DAYS 3 NIGHTS", m.ProgramName())

	// 2025-11-29 plus the default 7-day offset.
	require.Equal(t, "06/12/2025", fake.Values[driver.FieldPaymentDate])
	require.Equal(t, cfg.Form.Description, fake.Values[driver.FieldDescription])
	require.Equal(t, "3", fake.Selected[driver.FieldChargeType].Value)
	require.Equal(t, "500", fake.Values[driver.FieldAmount])

	remark := fake.Values[driver.FieldRemark]
	require.Contains(t, remark, "Program : 2UCKG-FD002 : KRABI 4 DAYS 3 NIGHTS")
	require.Contains(t, remark, "Code Program : 2UCKG-FD002")
	require.Contains(t, remark, "Code group : 2UCKG4NCKGFD251206")
	require.Contains(t, remark, "x 10 PAX = 500 THB")
	require.Contains(t, remark, "วันจ่าย : 06/12/2025")

	require.True(t, fake.ClickedField(driver.FieldSubmit))
	// Company block is off; none of its fields may be touched.
	require.Empty(t, fake.Values[driver.FieldCompanyAmount])
	require.False(t, fake.ClickedField(driver.FieldCompanyToggle))
}

func TestRunEntryDescriptionOverridesDefault(t *testing.T) {
	cfg := testConfig()
	fake := chargeFormFake()

	entry := testEntry
	entry.Description = "ค่าไกด์"

	m := New(cfg, fake)
	m.now = fixedNow
	require.NoError(t, m.Run(context.Background(), entry, testProgramCode))

	require.Equal(t, "ค่าไกด์", fake.Values[driver.FieldDescription])
	require.Contains(t, fake.Values[driver.FieldRemark], "ค่าไกด์ 50 (Fixed)")
}

func TestRunProgramNotFound(t *testing.T) {
	cfg := testConfig()
	fake := chargeFormFake()
	fake.Options[driver.FieldProgram] = nil

	m := New(cfg, fake)
	err := m.Run(context.Background(), testEntry, testProgramCode)
	require.ErrorIs(t, err, ErrProgramNotFound)
	require.Equal(t, StateFailed, m.State())
	require.False(t, fake.ClickedField(driver.FieldSubmit))
}

func TestRunTourCodeNotFound(t *testing.T) {
	cfg := testConfig()
	fake := chargeFormFake()
	fake.Options[driver.FieldPeriod] = []driver.Selection{
		{Value: "902", Label: "2UCKG4NCKGFD251213 (13/12/2025)"},
	}

	m := New(cfg, fake)
	err := m.Run(context.Background(), testEntry, testProgramCode)
	require.ErrorIs(t, err, ErrTourCodeNotFound)
	require.NotErrorIs(t, err, ErrProgramNotFound)
	require.Equal(t, StateFailed, m.State())
}

func TestRunCompanyBlock(t *testing.T) {
	cfg := testConfig()
	cfg.Company.Enabled = true

	fake := chargeFormFake()
	fake.Options[driver.FieldCompanyAgent] = []driver.Selection{
		{Value: "39", Label: "GO365 TRAVEL CO.,LTD."},
	}
	fake.Options[driver.FieldCompanyPaymentMethod] = []driver.Selection{
		{Value: "2", Label: "โอนเข้าบัญชี"},
	}
	fake.Options[driver.FieldCompanyPaymentType] = []driver.Selection{
		{Value: "5", Label: "เบ็ดเตล็ด"},
	}

	m := New(cfg, fake)
	m.now = fixedNow
	require.NoError(t, m.Run(context.Background(), testEntry, testProgramCode))
	require.Equal(t, StateSuccess, m.State())

	require.True(t, fake.ClickedField(driver.FieldCompanyToggle))
	require.Equal(t, "39", fake.Selected[driver.FieldCompanyAgent].Value)
	require.Equal(t, "500", fake.Values[driver.FieldCompanyAmount])
	require.Equal(t, "06/12/2025", fake.Values[driver.FieldCompanyPaymentDate])
	// The period field carries the tour code, never the program code.
	require.Equal(t, testEntry.TourCode, fake.Values[driver.FieldCompanyPeriod])

	remark := fake.Values[driver.FieldCompanyRemark]
	require.Contains(t, remark, "ค่าใช้จ่ายของบริษัท → GO365 TRAVEL CO.,LTD.")
	require.Contains(t, remark, "จำนวนเงิน → 500 THB")
	require.Contains(t, remark, "พีเรียด → "+testEntry.TourCode)
}

func TestRunCompanyToggleMissingSkipsBlock(t *testing.T) {
	cfg := testConfig()
	cfg.Company.Enabled = true

	fake := chargeFormFake()
	fake.Missing[driver.FieldCompanyToggle] = true

	m := New(cfg, fake)
	m.now = fixedNow
	require.NoError(t, m.Run(context.Background(), testEntry, testProgramCode))
	require.Equal(t, StateSuccess, m.State())
	require.Empty(t, fake.Values[driver.FieldCompanyAmount])
}

func TestRunSubmitFallback(t *testing.T) {
	cfg := testConfig()
	fake := chargeFormFake()
	fake.Missing[driver.FieldSubmit] = true
	fake.SubmitMethod = "button_submit"

	m := New(cfg, fake)
	m.now = fixedNow
	require.NoError(t, m.Run(context.Background(), testEntry, testProgramCode))
	require.Equal(t, StateSuccess, m.State())
}

func TestRunSubmitControlNotFound(t *testing.T) {
	cfg := testConfig()
	fake := chargeFormFake()
	fake.Missing[driver.FieldSubmit] = true
	// SubmitMethod empty: not even a bare <form> to submit.

	m := New(cfg, fake)
	m.now = fixedNow
	err := m.Run(context.Background(), testEntry, testProgramCode)
	require.ErrorIs(t, err, ErrSubmitControlNotFound)
	require.Equal(t, StateFailed, m.State())
}

func TestPaymentDateFormat(t *testing.T) {
	cfg := testConfig()
	cfg.Form.PaymentOffsetDays = 7

	m := New(cfg, drivertest.New())
	// Offset crossing a year boundary keeps zero-padded day and month.
	m.now = func() time.Time { return time.Date(2025, 12, 26, 8, 0, 0, 0, time.UTC) }
	if got := m.paymentDate(); got != "02/01/2026" {
		t.Errorf("paymentDate() = %q, want %q", got, "02/01/2026")
	}
}

func TestRemark(t *testing.T) {
	got := Remark("2UCKG-FD002 : KRABI", "2UCKG-FD002", "2UCKG4NCKGFD251206", 10, 500, "ค่าอุปกรณ์ออกทัวร์", "06/12/2025")
	// The header lines carry a trailing space after the colon; the portal
	// stores the remark verbatim.
	want := "เลขที่ : \n" +
		`Program : 2UCKG-FD002 : KRABI
Code Program : 2UCKG-FD002
Code group : 2UCKG4NCKGFD251206

` + "รายละเอียด : \n" +
		`ค่าอุปกรณ์ออกทัวร์ 50 (Fixed) x 10 PAX = 500 THB (Auto calculate)

ยอดเงินรวม : 500 THB

วันจ่าย : 06/12/2025`
	if got != want {
		t.Errorf("Remark mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestCompanyRemark(t *testing.T) {
	c := config.CompanyConfig{
		Name:          "GO365 TRAVEL CO.,LTD.",
		PaymentMethod: "โอนเข้าบัญชี",
		PaymentType:   "เบ็ดเตล็ด",
	}
	got := CompanyRemark(c, "2UCKG4NCKGFD251206", 500, "06/12/2025")
	want := `ค่าใช้จ่ายของบริษัท → GO365 TRAVEL CO.,LTD.
วิธีการจ่าย → โอนเข้าบัญชี
จำนวนเงิน → 500 THB
ประเภทจ่าย → เบ็ดเตล็ด
วันที่จ่าย → 06/12/2025
พีเรียด → 2UCKG4NCKGFD251206`
	if got != want {
		t.Errorf("CompanyRemark mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{500, "500"},
		{500.5, "500.5"},
		{1234.75, "1234.75"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := formatAmount(tt.in); got != tt.want {
			t.Errorf("formatAmount(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
