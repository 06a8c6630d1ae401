package domain

import "strings"

// PartitionKey normalizes an event type into its partition directory form:
// lowercased, with each run of non-alphanumeric characters collapsed into a
// single underscore. "Thunderstorm Wind" -> "thunderstorm_wind",
// "Marine Hail" -> "marine_hail", "TORNADO/WATERSPOUT" -> "tornado_waterspout".
func PartitionKey(eventType string) string {
	var b strings.Builder
	b.Grow(len(eventType))

	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(eventType)) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}

	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
