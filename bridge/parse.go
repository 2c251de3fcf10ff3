package bridge

import (
	"fmt"
	"regexp"
	"strconv"
)

// The amount field is at most nine digits, so it always fits an int64.
var directivePattern = regexp.MustCompile(`\[\[COOKIE:(GIVE|TAKE):(@?[A-Za-z0-9_]{1,25}):([0-9]{1,9})\]\]`)

// Directive is a parsed ledger request. It is either a Give or a Take.
type Directive interface {
	fmt.Stringer
	directive()
}

// Give asks for Amount cookies to be credited to Target.
type Give struct {
	Target string
	Amount int64
}

// Take asks for up to Amount cookies to be moved from Target to the house.
type Take struct {
	Target string
	Amount int64
}

func (Give) directive() {}
func (Take) directive() {}

func (g Give) String() string { return fmt.Sprintf("[[COOKIE:GIVE:%s:%d]]", g.Target, g.Amount) }
func (t Take) String() string { return fmt.Sprintf("[[COOKIE:TAKE:%s:%d]]", t.Target, t.Amount) }

// Match is one directive and its byte span [Start, End) in the scanned text.
type Match struct {
	Directive Directive
	Start     int
	End       int
}

// Parse returns the well-formed directives in text, in order. Spans that look like
// directives but do not fit the grammar, including a zero amount or extra brackets
// around the tag, are not returned.
func Parse(text string) []Match {
	locs := directivePattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]Match, 0, len(locs))
	for _, loc := range locs {
		// Whole tags only: a bracket glued to either side means the tag is malformed.
		if (loc[0] > 0 && text[loc[0]-1] == '[') || (loc[1] < len(text) && text[loc[1]] == ']') {
			continue
		}
		action := text[loc[2]:loc[3]]
		target := text[loc[4]:loc[5]]
		amount, err := strconv.ParseInt(text[loc[6]:loc[7]], 10, 64)
		if err != nil || amount <= 0 {
			continue
		}
		var d Directive
		switch action {
		case "GIVE":
			d = Give{Target: target, Amount: amount}
		case "TAKE":
			d = Take{Target: target, Amount: amount}
		default:
			continue
		}
		out = append(out, Match{Directive: d, Start: loc[0], End: loc[1]})
	}
	return out
}
