// Package uaclass maps user-agent strings to agent families and flags
// automated clients. Everything here is pure and safe for concurrent use.
package uaclass

import (
	"regexp"
)

// BotKeywordRegex matches substrings that mark a user agent as automated.
var BotKeywordRegex = regexp.MustCompile(
	`(?i)bot|crawl|spider|slurp|bingpreview|facebookexternalhit|wget|curl`,
)

// KnownBotFamilies are agent families treated as bots even when the raw
// string carries none of the bot keywords.
var KnownBotFamilies = map[string]struct{}{
	"Googlebot":   {},
	"Bingbot":     {},
	"YandexBot":   {},
	"Baiduspider": {},
	"DuckDuckBot": {},
}

// FamilyClassifier resolves a user-agent string to a canonical family name.
// Implementations return "" for empty or unrecognised input.
type FamilyClassifier interface {
	Family(ua string) string
}

// Classifier combines keyword detection with a family lookup.
type Classifier struct {
	families FamilyClassifier
}

// New creates a Classifier backed by families. A nil families uses the
// ua-parser definitions.
func New(families FamilyClassifier) *Classifier {
	if families == nil {
		families = NewParser()
	}
	return &Classifier{families: families}
}

// OtherFamily is the ua-parser label for unrecognised user agents.
const OtherFamily = "Other"

// Default is the process-wide classifier backed by ua-parser.
var Default = New(nil)

// Family returns the canonical agent family for ua.
func (c *Classifier) Family(ua string) string {
	if ua == "" {
		return ""
	}
	return c.families.Family(ua)
}

// IsBot reports whether ua belongs to an automated client.
func (c *Classifier) IsBot(ua string) bool {
	if ua == "" {
		return false
	}
	if BotKeywordRegex.MatchString(ua) {
		return true
	}
	_, known := KnownBotFamilies[c.Family(ua)]
	return known
}

// IsBot classifies ua with the default classifier.
func IsBot(ua string) bool { return Default.IsBot(ua) }

// Family resolves ua with the default classifier.
func Family(ua string) string { return Default.Family(ua) }
