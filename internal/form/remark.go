package form

import (
	"fmt"
	"strconv"

	"tourcharge/internal/config"
)

// formatAmount prints whole amounts without a decimal point, matching how
// the portal renders them.
func formatAmount(a float64) string {
	return strconv.FormatFloat(a, 'f', -1, 64)
}

// Remark renders the structured remark block for the main charge entry.
// The layout is what the back office expects to read back later; keep it
// stable, including the trailing space after the header lines.
func Remark(programName, programCode, tourCode string, pax int, amount float64, description, paymentDate string) string {
	amt := formatAmount(amount)
	return fmt.Sprintf("เลขที่ : \n"+
		`Program : %s
Code Program : %s
Code group : %s

`+"รายละเอียด : \n"+
		`%s 50 (Fixed) x %d PAX = %s THB (Auto calculate)

ยอดเงินรวม : %s THB

วันจ่าย : %s`, programName, programCode, tourCode, description, pax, amt, amt, paymentDate)
}

// CompanyRemark renders the remark block for the company expense sub-block.
func CompanyRemark(c config.CompanyConfig, tourCode string, amount float64, paymentDate string) string {
	amt := formatAmount(amount)
	return fmt.Sprintf(`ค่าใช้จ่ายของบริษัท → %s
วิธีการจ่าย → %s
จำนวนเงิน → %s THB
ประเภทจ่าย → %s
วันที่จ่าย → %s
พีเรียด → %s`, c.Name, c.PaymentMethod, amt, c.PaymentType, paymentDate, tourCode)
}
