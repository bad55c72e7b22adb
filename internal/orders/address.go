package orders

import (
	"strings"
)

var countryCodes = map[string]string{
	"us":                       "US",
	"usa":                      "US",
	"u.s.":                     "US",
	"u.s.a.":                   "US",
	"united states":            "US",
	"united states of america": "US",
	"america":                  "US",
	"ca":                       "CA",
	"can":                      "CA",
	"canada":                   "CA",
	"gb":                       "GB",
	"uk":                       "GB",
	"u.k.":                     "GB",
	"united kingdom":           "GB",
	"great britain":            "GB",
	"england":                  "GB",
	"scotland":                 "GB",
	"wales":                    "GB",
	"au":                       "AU",
	"aus":                      "AU",
	"australia":                "AU",
	"de":                       "DE",
	"deu":                      "DE",
	"germany":                  "DE",
	"fr":                       "FR",
	"fra":                      "FR",
	"france":                   "FR",
	"mx":                       "MX",
	"mex":                      "MX",
	"mexico":                   "MX",
	"nz":                       "NZ",
	"new zealand":              "NZ",
	"ie":                       "IE",
	"ireland":                  "IE",
	"nl":                       "NL",
	"netherlands":              "NL",
	"es":                       "ES",
	"spain":                    "ES",
	"it":                       "IT",
	"italy":                    "IT",
	"jp":                       "JP",
	"japan":                    "JP",
}

// stateCodes holds full names for the countries where the provider requires
// a state code.
var stateCodes = map[string]map[string]string{
	"US": {
		"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
		"colorado": "CO", "connecticut": "CT", "delaware": "DE", "district of columbia": "DC",
		"washington dc": "DC", "washington d.c.": "DC", "florida": "FL", "georgia": "GA",
		"hawaii": "HI", "idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
		"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
		"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
		"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
		"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
		"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
		"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
		"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
		"virginia": "VA", "washington": "WA", "west virginia": "WV", "wisconsin": "WI",
		"wyoming": "WY", "puerto rico": "PR",
	},
	"CA": {
		"alberta": "AB", "british columbia": "BC", "manitoba": "MB", "new brunswick": "NB",
		"newfoundland and labrador": "NL", "newfoundland": "NL", "nova scotia": "NS",
		"northwest territories": "NT", "nunavut": "NU", "ontario": "ON",
		"prince edward island": "PE", "quebec": "QC", "québec": "QC", "saskatchewan": "SK",
		"yukon": "YT",
	},
	"AU": {
		"australian capital territory": "ACT", "new south wales": "NSW", "northern territory": "NT",
		"queensland": "QLD", "south australia": "SA", "tasmania": "TAS", "victoria": "VIC",
		"western australia": "WA",
	},
}

// NormalizeCountry maps common country names and ISO-3 codes onto ISO-2.
// Anything unknown is trimmed and upper-cased.
func NormalizeCountry(country string) string {
	key := strings.ToLower(strings.TrimSpace(country))
	if code, ok := countryCodes[key]; ok {
		return code
	}
	return strings.ToUpper(strings.TrimSpace(country))
}

// NormalizeState converts a full state or province name to its code for
// countries that use one. Other countries keep the value as given.
func NormalizeState(countryCode, state string) string {
	state = strings.TrimSpace(state)
	table, ok := stateCodes[countryCode]
	if !ok {
		return state
	}
	if code, ok := table[strings.ToLower(state)]; ok {
		return code
	}
	return strings.ToUpper(state)
}
