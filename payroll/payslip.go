package payroll

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PayslipIDFunc generates the identifier tying a closed cycle to its ledger entry.
type PayslipIDFunc func(employeeID string, at time.Time) string

// NewPayslipID returns PS-<base36 millis><2-char employee suffix>-<4 random chars>.
// The random tail keeps ids distinct for employees whose ids share a suffix
// ("101" and "201") and are paid in the same millisecond by a bulk run.
func NewPayslipID(employeeID string, at time.Time) string {
	ts := strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36))
	nonce := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return "PS-" + ts + employeeSuffix(employeeID) + "-" + nonce
}

func employeeSuffix(id string) string {
	id = strings.ToUpper(id)
	switch len(id) {
	case 0:
		return "00"
	case 1:
		return "0" + id
	default:
		return id[len(id)-2:]
	}
}
