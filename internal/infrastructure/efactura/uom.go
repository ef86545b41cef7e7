package efactura

import (
	"strings"

	"golang.org/x/text/language"
)

// The registry expects unit-of-measure names in the account's portal
// language. ERP UOM codes are English; this table carries the print names
// per supported language.
var uomTables = map[language.Tag]map[string]string{
	language.Romanian: {
		"nos":   "buc",
		"unit":  "buc",
		"piece": "buc",
		"box":   "cutie",
		"set":   "set",
		"pair":  "pereche",
		"kg":    "kg",
		"gram":  "g",
		"tonne": "t",
		"litre": "l",
		"meter": "m",
		"sqm":   "m2",
		"hour":  "ora",
		"day":   "zi",
	},
	language.Russian: {
		"nos":   "шт",
		"unit":  "шт",
		"piece": "шт",
		"box":   "коробка",
		"set":   "компл",
		"pair":  "пара",
		"kg":    "кг",
		"gram":  "г",
		"tonne": "т",
		"litre": "л",
		"meter": "м",
		"sqm":   "м2",
		"hour":  "час",
		"day":   "день",
	},
	language.English: {},
}

var supportedUOMLanguages = []language.Tag{
	language.Romanian, // first entry is the fallback
	language.Russian,
	language.English,
}

var uomMatcher = language.NewMatcher(supportedUOMLanguages)

// UOMTranslator localizes ERP unit-of-measure codes for the document XML.
type UOMTranslator struct {
	table map[string]string
}

// NewUOMTranslator picks the closest supported language for lang (a BCP 47
// tag from the settings, e.g. "ro" or "ru-MD").
func NewUOMTranslator(lang string) *UOMTranslator {
	_, idx := language.MatchStrings(uomMatcher, lang)
	return &UOMTranslator{table: uomTables[supportedUOMLanguages[idx]]}
}

// Translate returns the localized print name, or the ERP code unchanged when
// no translation exists.
func (t *UOMTranslator) Translate(uom string) string {
	if name, ok := t.table[strings.ToLower(uom)]; ok {
		return name
	}
	return uom
}
