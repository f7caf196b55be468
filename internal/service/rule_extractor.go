package service

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"propsearch/internal/model"
	"propsearch/internal/utils"
)

const amountPattern = `\$?\s*\d[\d,]*(?:\.\d+)?(?:\s*(?:thousand|million|billion|mil|mm|k|m|b))?\b`

var (
	sqftRe       = regexp.MustCompile(`(?i)\b(?:(?:at\s+least|over|more\s+than|min(?:imum)?)\s+)?(\d[\d,]*)\s*\+?\s*(?:sq\.?\s*ft\.?|sqft|square\s+f(?:ee|oo)t)`)
	priceRangeRe = regexp.MustCompile(`(?i)\b(?:between|from)\s+(` + amountPattern + `)\s+(?:and|to|-)\s+(` + amountPattern + `)`)
	maxPriceRe   = regexp.MustCompile(`(?i)\b(?:under|below|less\s+than|up\s+to|at\s+most|no\s+more\s+than|max(?:imum)?|budget(?:\s+of)?)\s+(` + amountPattern + `)`)
	minPriceRe   = regexp.MustCompile(`(?i)\b(?:over|above|more\s+than|at\s+least|starting\s+at|min(?:imum)?)\s+(` + amountPattern + `)`)
	bedroomsRe   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?|one|two|three|four|five|six)\s*-?\s*(?:bed(?:room)?s?|br|bd)\b`)
	bathroomsRe  = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?|one|two|three|four|five|six)\s*-?\s*(?:bath(?:room)?s?|ba)\b`)
	typeWordRe   = regexp.MustCompile(`(?i)\b(?:single[- ]family(?:\s+homes?)?|houses?|homes?|cottages?|brownstones?|apartments?|apts?|condominiums?|condos?|townhouses?|townhomes?|studios?)\b`)
	// case-sensitive: place names are capitalised
	locationRe = regexp.MustCompile(`\b[Ii]n\s+([A-Z][A-Za-z.'-]*(?:\s+[A-Z][A-Za-z.'-]*)*)(?:,\s*([A-Z]{2})\b)?`)
)

// minPriceAmount keeps "under 5 minutes" from becoming a price ceiling
const minPriceAmount = 1000

var numberWords = map[string]float64{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
}

var stateCodes = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "florida": "FL", "georgia": "GA",
	"hawaii": "HI", "idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS", "missouri": "MO",
	"montana": "MT", "nebraska": "NE", "nevada": "NV", "new hampshire": "NH", "new jersey": "NJ",
	"new mexico": "NM", "new york state": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington state": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
}

// RuleExtractor is a deterministic regex extractor needing no external
// service. It recognises counts, price bounds, square footage, property
// types, "in City[, ST]" and amenity aliases.
type RuleExtractor struct{}

// NewRuleExtractor creates a RuleExtractor
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

type span struct{ start, end int }

// claims tracks which byte ranges of the query have been consumed
type claims []span

func (c *claims) free(start, end int) bool {
	for _, s := range *c {
		if start < s.end && s.start < end {
			return false
		}
	}
	return true
}

func (c *claims) take(start, end int) {
	*c = append(*c, span{start, end})
}

// Extract implements FilterExtractor
func (e *RuleExtractor) Extract(ctx context.Context, query string) *Extraction {
	f := &model.QueryFilter{}
	var used claims

	// square footage first so "over 1000 sqft" is not read as a price
	if m := sqftRe.FindStringSubmatchIndex(query); m != nil {
		if v, err := strconv.ParseInt(strings.ReplaceAll(query[m[2]:m[3]], ",", ""), 10, 64); err == nil {
			f.MinSquareFeet = &v
			used.take(m[0], m[1])
		}
	}

	if m := priceRangeRe.FindStringSubmatchIndex(query); m != nil && used.free(m[0], m[1]) {
		lo, okLo := parsePrice(query[m[2]:m[3]])
		hi, okHi := parsePrice(query[m[4]:m[5]])
		if okLo && okHi {
			f.MinPrice, f.MaxPrice = &lo, &hi
			used.take(m[0], m[1])
		}
	}
	if f.MaxPrice == nil {
		f.MaxPrice = firstPrice(maxPriceRe, query, &used)
	}
	if f.MinPrice == nil {
		f.MinPrice = firstPrice(minPriceRe, query, &used)
	}

	f.MinBedrooms = firstCount(bedroomsRe, query, &used)
	f.MinBathrooms = firstCount(bathroomsRe, query, &used)

	for _, loc := range typeWordRe.FindAllStringIndex(query, -1) {
		if !used.free(loc[0], loc[1]) {
			continue
		}
		if pt, ok := model.ParsePropertyType(query[loc[0]:loc[1]]); ok {
			f.PropertyType = &pt
			used.take(loc[0], loc[1])
			break
		}
	}

	for _, m := range locationRe.FindAllStringSubmatchIndex(query, -1) {
		if !used.free(m[0], m[1]) {
			continue
		}
		place := query[m[2]:m[3]]
		if code, ok := stateCode(place); ok {
			f.State = &code
		} else {
			f.City = &place
			if m[4] >= 0 {
				st := query[m[4]:m[5]]
				f.State = &st
			}
		}
		used.take(m[0], m[1])
		break
	}

	var amenities []string
	for _, match := range utils.FindAmenities(query) {
		if !used.free(match.Start, match.End) {
			continue
		}
		amenities = append(amenities, match.Tag)
		used.take(match.Start, match.End)
	}
	if len(amenities) > 0 {
		f.RequiredAmenities = amenities
	}

	repairs := f.Repair()
	return &Extraction{
		Filter:   f,
		Residual: residualText(query, used),
		Repairs:  repairs,
	}
}

func firstPrice(re *regexp.Regexp, query string, used *claims) *int64 {
	for _, m := range re.FindAllStringSubmatchIndex(query, -1) {
		if !used.free(m[0], m[1]) {
			continue
		}
		if v, ok := parsePrice(query[m[2]:m[3]]); ok && v >= minPriceAmount {
			used.take(m[0], m[1])
			return &v
		}
	}
	return nil
}

func firstCount(re *regexp.Regexp, query string, used *claims) *float64 {
	m := re.FindStringSubmatchIndex(query)
	if m == nil || !used.free(m[0], m[1]) {
		return nil
	}
	raw := strings.ToLower(query[m[2]:m[3]])
	v, ok := numberWords[raw]
	if !ok {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil
		}
		v = parsed
	}
	used.take(m[0], m[1])
	return &v
}

func parsePrice(s string) (int64, bool) {
	v, ok := utils.ParseAmount(s)
	if !ok {
		return 0, false
	}
	return utils.RoundInt64(v)
}

func stateCode(place string) (string, bool) {
	key := strings.ToLower(place)
	if code, ok := stateCodes[key]; ok {
		return code, true
	}
	if len(place) == 2 && strings.ToUpper(place) == place {
		for _, code := range stateCodes {
			if code == place {
				return code, true
			}
		}
	}
	return "", false
}

// residualText is the query minus every claimed span, without stopwords.
func residualText(query string, used claims) string {
	sort.Slice(used, func(i, j int) bool { return used[i].start < used[j].start })
	var b strings.Builder
	last := 0
	for _, s := range used {
		if s.start > last {
			b.WriteString(query[last:s.start])
		}
		b.WriteByte(' ')
		if s.end > last {
			last = s.end
		}
	}
	if last < len(query) {
		b.WriteString(query[last:])
	}
	return strings.Join(meaningfulTokens(b.String()), " ")
}
