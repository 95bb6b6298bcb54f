package uaclass

import (
	"sync"

	"github.com/ua-parser/uap-go/uaparser"
)

// Parser resolves families with the ua-parser regex corpus.
type Parser struct {
	once   sync.Once
	parser *uaparser.Parser
}

// NewParser returns a Parser over the bundled ua-parser definitions. The
// definitions compile on first use.
func NewParser() *Parser { return &Parser{} }

// Family implements FamilyClassifier. Agents ua-parser labels "Other" resolve
// to "".
func (p *Parser) Family(ua string) string {
	if ua == "" {
		return ""
	}
	p.once.Do(func() { p.parser = uaparser.NewFromSaved() })
	fam := p.parser.ParseUserAgent(ua).Family
	if fam == OtherFamily {
		return ""
	}
	return fam
}
