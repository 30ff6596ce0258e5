package production

import (
	"fmt"
	"time"
)

// WorkOrderCode formats the code of the seq-th work order created on day,
// e.g. WO-20261019-007.
func WorkOrderCode(day time.Time, seq int) string {
	return fmt.Sprintf("WO-%s-%03d", day.Format("20060102"), seq)
}

// BatchNumber formats the batch number printed on labels for the same run,
// e.g. B261019-007.
func BatchNumber(day time.Time, seq int) string {
	return fmt.Sprintf("B%s-%03d", day.Format("060102"), seq)
}

// WorkOrderCodePrefix is the code prefix shared by all orders of one day.
func WorkOrderCodePrefix(day time.Time) string {
	return "WO-" + day.Format("20060102") + "-"
}
