package codec

import (
	"math"
	"regexp"
	"strconv"
)

// numberPattern matches the first signed decimal token of a display string.
var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ExtractNumber returns the first signed decimal number found in text.
// Units and any other surrounding text are ignored: "-3.50 °C" yields -3.5,
// "kΩ 12" yields 12, "n/a" yields nothing.
func ExtractNumber(text string) (float64, bool) {
	m := numberPattern.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
