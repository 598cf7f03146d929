package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sasya-arogya/engine/pkg/models"
	"github.com/sasya-arogya/engine/pkg/tools"
)

// acreToHectare converts acres to hectares (1 acre = 0.4047 ha).
const acreToHectare = 0.4047

var farmerNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:my name is|i am|i'm)\s+([a-zA-Z][a-zA-Z\s]+)`),
	regexp.MustCompile(`(?i)farmer\s+([a-zA-Z][a-zA-Z\s]+)`),
	regexp.MustCompile(`(?i)name:\s*([a-zA-Z][a-zA-Z\s]+)`),
}

var (
	hectarePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:hectares?|ha\b)`)
	acrePattern    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*acres?`)
	areaPattern    = regexp.MustCompile(`(?i)area.*?(\d+(?:\.\d+)?)`)
)

var cropPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:crop|plant|growing)\s+([a-zA-Z][a-zA-Z\s]+)`),
	regexp.MustCompile(`(?i)([a-zA-Z]+)\s+(?:crop|cultivation)`),
	regexp.MustCompile(`(?i)cultivating\s+([a-zA-Z][a-zA-Z\s]+)`),
}

// IndianStates is the state-name list matched against user messages.
var IndianStates = []string{
	"andhra pradesh", "assam", "bihar", "chhattisgarh", "gujarat", "haryana",
	"himachal pradesh", "jharkhand", "karnataka", "kerala", "madhya pradesh",
	"maharashtra", "odisha", "punjab", "rajasthan", "tamil nadu", "telangana",
	"uttar pradesh", "uttarakhand", "west bengal",
}

// ExtractInsuranceDetails pulls farmer name, cultivated area (with acre to
// hectare conversion), crop and state out of a user message. Returned fields
// are empty/zero when nothing matched.
func ExtractInsuranceDetails(message string) models.InsuranceContext {
	var out models.InsuranceContext
	lower := strings.ToLower(message)

	for _, pattern := range farmerNamePatterns {
		if m := pattern.FindStringSubmatch(message); len(m) == 2 {
			name := strings.TrimSpace(m[1])
			if len(name) > 2 {
				out.FarmerName = title(name)
				break
			}
		}
	}

	if m := hectarePattern.FindStringSubmatch(message); len(m) == 2 {
		out.AreaHectare, _ = strconv.ParseFloat(m[1], 64)
	} else if m := acrePattern.FindStringSubmatch(message); len(m) == 2 {
		acres, _ := strconv.ParseFloat(m[1], 64)
		out.AreaHectare = acres * acreToHectare
	} else if m := areaPattern.FindStringSubmatch(message); len(m) == 2 {
		out.AreaHectare, _ = strconv.ParseFloat(m[1], 64)
	}

	for _, crop := range tools.CommonCrops {
		if strings.Contains(lower, crop) {
			out.Crop = title(crop)
			break
		}
	}
	if out.Crop == "" {
		for _, pattern := range cropPatterns {
			if m := pattern.FindStringSubmatch(message); len(m) == 2 {
				crop := strings.TrimSpace(m[1])
				if len(crop) > 2 {
					out.Crop = title(crop)
					break
				}
			}
		}
	}

	for _, state := range IndianStates {
		if strings.Contains(lower, state) {
			out.State = title(state)
			break
		}
	}

	return out
}

// title upper-cases the first letter of each word; enough for names and crop
// words without pulling in a cases package.
func title(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
