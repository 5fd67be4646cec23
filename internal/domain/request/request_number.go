package request

import "fmt"

// RequestNumber formats REQ-<year>-<6-digit sequence>.
func RequestNumber(year int, seq int64) string {
	return fmt.Sprintf("REQ-%d-%06d", year, seq)
}
