package decode

import (
	"fmt"
	"regexp"
	"strconv"
)

// clockToken matches an hour with optional minutes: "8", "8.00", "13:15".
var clockToken = regexp.MustCompile(`\b(\d{1,2})(?:[.:](\d{2}))?\b`)

// ExtractTimes returns the first two clock tokens of text as HH:MM strings.
// A bare hour means :00. ok is false when fewer than two tokens are present.
//
//	ExtractTimes("Seminarium 8-9.30")      // "08:00", "09:30", true
//	ExtractTimes("wykład 13:15 do 15:00")  // "13:15", "15:00", true
func ExtractTimes(text string) (start, end string, ok bool) {
	m := clockToken.FindAllStringSubmatch(text, 2)
	if len(m) < 2 {
		return "", "", false
	}
	return normalizeToken(m[0]), normalizeToken(m[1]), true
}

func normalizeToken(m []string) string {
	h, _ := strconv.Atoi(m[1])
	mins := 0
	if m[2] != "" {
		mins, _ = strconv.Atoi(m[2])
	}
	return fmt.Sprintf("%02d:%02d", h, mins)
}
