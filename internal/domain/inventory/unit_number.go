package inventory

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UnitNumber formats a bank-issued unit number: BU-<year>-<6-digit sequence>.
func UnitNumber(year int, seq int64) string {
	return fmt.Sprintf("BU-%d-%06d", year, seq)
}

// CollectionUnitNumber formats the number of a unit created by a completed
// donation: BB<bank>-<yyyyMMdd>-<suffix>. Numeric bank ids are zero padded to
// two digits.
func CollectionUnitNumber(bankID string, day time.Time, suffix string) string {
	bank := strings.ToUpper(strings.TrimSpace(bankID))
	if n, err := strconv.Atoi(bank); err == nil {
		bank = fmt.Sprintf("%02d", n)
	}
	return fmt.Sprintf("BB%s-%s-%s", bank, day.Format("20060102"), strings.ToUpper(suffix))
}
