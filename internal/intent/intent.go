// Package intent labels an inbound question so the orchestrator can pick a
// pipeline: navigation and tool-help questions are answered from site
// structure alone, everything else goes through the knowledge pipeline.
package intent

import "strings"

// Type is the routed intent class.
type Type string

const (
	TypeNavigation Type = "navigation"
	TypeToolHelp   Type = "tool_help"
	TypeGeneral    Type = "general"
)

// Context carries where the question was asked from.
type Context struct {
	PagePath     string
	Jurisdiction string
	Role         string
}

// Decision is the router verdict.
type Decision struct {
	Type Type
}

// Router is the intent contract the orchestrator depends on.
type Router interface {
	Route(question string, rc Context) Decision
}

var navigationPhrases = []string{
	"where do i find",
	"where can i find",
	"where is the",
	"how do i get to",
	"take me to",
	"navigate to",
	"which page",
	"show me the page",
}

var toolHelpPhrases = []string{
	"how do i use",
	"how does this tool",
	"how do i fill",
	"what does this button",
	"how do i save my",
	"how do i start the exercise",
	"this tool",
	"this exercise",
}

// Rules is the default keyword-table router.
type Rules struct{}

func NewRules() *Rules { return &Rules{} }

func (r *Rules) Route(question string, rc Context) Decision {
	q := strings.ToLower(question)

	for _, phrase := range toolHelpPhrases {
		if strings.Contains(q, phrase) {
			return Decision{Type: TypeToolHelp}
		}
	}
	for _, phrase := range navigationPhrases {
		if strings.Contains(q, phrase) {
			return Decision{Type: TypeNavigation}
		}
	}
	return Decision{Type: TypeGeneral}
}
