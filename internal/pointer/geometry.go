package pointer

import (
	"errors"
	"math"

	"github.com/buger/jsonparser"
)

// element is an interactive element reported by elementAtScript.
type element struct {
	Tag       string
	ClassName string
	Top       float64 // page space
	CenterX   float64
}

func parseElement(raw string) (element, bool) {
	data := []byte(raw)
	if _, typ, _, err := jsonparser.Get(data); err != nil || typ != jsonparser.Object {
		return element{}, false
	}
	top, err := jsonparser.GetFloat(data, "top")
	if err != nil {
		return element{}, false
	}
	centerX, err := jsonparser.GetFloat(data, "centerX")
	if err != nil {
		return element{}, false
	}
	tag, _ := jsonparser.GetString(data, "tag")
	class, _ := jsonparser.GetString(data, "className")
	return element{Tag: tag, ClassName: class, Top: top, CenterX: centerX}, true
}

// resultString decodes a string result. Non-string values yield "".
func resultString(raw string) string {
	v, typ, _, err := jsonparser.Get([]byte(raw))
	if err != nil || typ != jsonparser.String {
		return ""
	}
	s, err := jsonparser.ParseString(v)
	if err != nil {
		return ""
	}
	return s
}

var errBadGeometry = errors.New("malformed geometry result")

func parseGeometry(raw string) (width, height int, err error) {
	data := []byte(raw)
	w, err := jsonparser.GetFloat(data, "width")
	if err != nil {
		return 0, 0, errBadGeometry
	}
	h, err := jsonparser.GetFloat(data, "height")
	if err != nil {
		return 0, 0, errBadGeometry
	}
	return int(math.Round(w)), int(math.Round(h)), nil
}

// capHeight guards against measurements inflated by fixed or sticky
// elements: a height more than slack above the engine's own figure is
// replaced by that figure.
func capHeight(measured, reported, slack int) int {
	if measured > reported+slack {
		return reported
	}
	return measured
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(v, hi))
}
