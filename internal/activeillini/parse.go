package activeillini

import "regexp"

var (
	courtIDRe  = regexp.MustCompile(`data-facility-id="([a-f0-9-]+)"`)
	hiddenIDRe = regexp.MustCompile(`hdnSelectedFacilityId.*?value="([a-f0-9-]+)"`)
	buttonRe   = regexp.MustCompile(`(?s)<button\b[^>]*>`)
	attrRe     = regexp.MustCompile(`([a-zA-Z-]+)="([^"]*)"`)
	disabledRe = regexp.MustCompile(`\sdisabled[\s>=]`)
)

// parseCourtIDs pulls every court id off a facilities page, de-duplicated
// in page order.
func parseCourtIDs(html string) []string {
	matches := courtIDRe.FindAllStringSubmatch(html, -1)
	if len(matches) == 0 {
		matches = hiddenIDRe.FindAllStringSubmatch(html, -1)
	}
	seen := map[string]bool{}
	var ids []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}

// parseSlotButtons extracts the enabled slot buttons from a slots page.
// Disabled buttons and buttons without slot data are skipped.
func parseSlotButtons(html string) []SlotButton {
	var out []SlotButton
	for _, tag := range buttonRe.FindAllString(html, -1) {
		attrs := map[string]string{}
		for _, kv := range attrRe.FindAllStringSubmatch(tag, -1) {
			attrs[kv[1]] = kv[2]
		}
		if disabledRe.MatchString(tag) || containsWord(attrs["class"], "disabled") {
			continue
		}
		text := attrs["data-slot-text"]
		if text == "" {
			continue
		}
		out = append(out, SlotButton{
			AptID:      attrs["data-apt-id"],
			TimeslotID: attrs["data-timeslot-id"],
			InstanceID: attrs["data-timeslotinstance-id"],
			Text:       text,
			SpotsLeft:  attrs["data-spots-left-text"],
		})
	}
	return out
}

func containsWord(class, word string) bool {
	start := 0
	for i := 0; i <= len(class); i++ {
		if i == len(class) || class[i] == ' ' {
			if class[start:i] == word {
				return true
			}
			start = i + 1
		}
	}
	return false
}
