package filter

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	bodyPath     = "body"
	usernamePath = "actor.preferredUsername"
)

// Filter decides whether a record stays in the set.
type Filter interface {
	Keep(raw []byte) bool
}

// Classifier assigns a record to a named class.
type Classifier interface {
	Classify(raw []byte) string
}

// Apply returns the records f keeps, in order.
func Apply(recs [][]byte, f Filter) [][]byte {
	var out [][]byte
	for _, raw := range recs {
		if f.Keep(raw) {
			out = append(out, raw)
		}
	}
	return out
}

// Partition groups records by class, preserving order inside each class.
func Partition(recs [][]byte, c Classifier) map[string][][]byte {
	out := make(map[string][][]byte)
	for _, raw := range recs {
		class := c.Classify(raw)
		out[class] = append(out[class], raw)
	}
	return out
}

func tokens(raw []byte) []string {
	return strings.Fields(strings.ToLower(gjson.GetBytes(raw, bodyPath).String()))
}

// TokenRejector drops records whose body mentions any of Tokens. A multi-word
// token matches as a phrase.
type TokenRejector struct {
	Tokens []string
}

// AppleVarieties rejects fruit talk from an "apple" rule.
func AppleVarieties() TokenRejector {
	return TokenRejector{Tokens: []string{"gala", "fuji", "granny smith"}}
}

func (f TokenRejector) Keep(raw []byte) bool {
	words := tokens(raw)
	joined := " " + strings.Join(words, " ") + " "
	for _, tok := range f.Tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if strings.Contains(joined, " "+tok+" ") {
			return false
		}
	}
	return true
}

// UsernameLengthFilter keeps authors whose username is longer than Min.
type UsernameLengthFilter struct {
	Min int
}

func (f UsernameLengthFilter) Keep(raw []byte) bool {
	return len(gjson.GetBytes(raw, usernamePath).String()) > f.Min
}

// UsernameLengthClassifier classes a record by its author's username length,
// or "-1" when the record has no username.
type UsernameLengthClassifier struct{}

func (UsernameLengthClassifier) Classify(raw []byte) string {
	name := gjson.GetBytes(raw, usernamePath)
	if !name.Exists() {
		return "-1"
	}
	return strconv.Itoa(len(name.String()))
}

// Class is a named keyword set.
type Class struct {
	Name     string
	Keywords []string
}

// KeywordClassifier returns the first class sharing a token with the body,
// else Fallback.
type KeywordClassifier struct {
	Classes  []Class
	Fallback string
}

func AppleDevices() KeywordClassifier {
	return KeywordClassifier{
		Classes: []Class{
			{Name: "iphone", Keywords: []string{"iphone", "iphone5", "iphone5s", "iphone5c", "iphone5se", "iphone6", "iphone6s", "iphone6plus"}},
			{Name: "ipad", Keywords: []string{"ipad", "ipadair", "ipadair2", "ipad2", "ipad3", "ipadmini"}},
			{Name: "macbook", Keywords: []string{"macbook", "mbp", "macbookpro"}},
		},
		Fallback: "other",
	}
}

func (c KeywordClassifier) Classify(raw []byte) string {
	seen := make(map[string]bool)
	for _, tok := range tokens(raw) {
		seen[tok] = true
	}
	for _, class := range c.Classes {
		for _, kw := range class.Keywords {
			if seen[strings.ToLower(kw)] {
				return class.Name
			}
		}
	}
	if c.Fallback == "" {
		return "other"
	}
	return c.Fallback
}
