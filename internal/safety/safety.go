// Package safety classifies the risk level of an inbound question and
// produces jurisdiction-appropriate signposting. The orchestrator treats an
// emergency classification as a hard stop: no lookups, no network.
package safety

import "strings"

// Level is the assessed risk of a question.
type Level string

const (
	LevelEmergency Level = "emergency"
	LevelHigh      Level = "high"
	LevelModerate  Level = "moderate"
	LevelLow       Level = "low"
)

// Action tells the orchestrator how to proceed.
type Action string

const (
	ActionEscalateOnly Action = "escalate_only"
	ActionCaution      Action = "caution"
	ActionProceed      Action = "proceed"
)

// Assessment is the classifier verdict.
type Assessment struct {
	Level       Level
	Action      Action
	Signposting string
}

// Classifier is the safety contract the orchestrator depends on.
type Classifier interface {
	Check(question, jurisdiction string) Assessment
	EmergencyResponse(level Level, jurisdiction string) string
}

// emergencyPhrases force escalate-only handling. Substring matching over
// the lowercased question is deliberate: recall matters far more than
// precision here.
var emergencyPhrases = []string{
	"kill myself",
	"killing myself",
	"end my life",
	"ending my life",
	"want to die",
	"suicide",
	"suicidal",
	"overdose",
	"self harm",
	"self-harm",
	"hurt myself",
	"hurting myself",
}

var highRiskPhrases = []string{
	"crisis",
	"can't cope",
	"cant cope",
	"hopeless",
	"no way out",
	"give up on everything",
}

// Rules is the default keyword-table classifier.
type Rules struct{}

func NewRules() *Rules { return &Rules{} }

func (r *Rules) Check(question, jurisdiction string) Assessment {
	q := strings.ToLower(question)

	for _, phrase := range emergencyPhrases {
		if strings.Contains(q, phrase) {
			return Assessment{
				Level:       LevelEmergency,
				Action:      ActionEscalateOnly,
				Signposting: r.EmergencyResponse(LevelEmergency, jurisdiction),
			}
		}
	}
	for _, phrase := range highRiskPhrases {
		if strings.Contains(q, phrase) {
			return Assessment{
				Level:       LevelHigh,
				Action:      ActionCaution,
				Signposting: crisisSignposting(jurisdiction),
			}
		}
	}
	return Assessment{Level: LevelLow, Action: ActionProceed}
}

func (r *Rules) EmergencyResponse(level Level, jurisdiction string) string {
	switch normalizeJurisdiction(jurisdiction) {
	case "uk":
		return "If you are in immediate danger, call 999 now. You can also call Samaritans free on 116 123, any time, or text SHOUT to 85258. If you need urgent medical advice, call NHS 111."
	case "us":
		return "If you are in immediate danger, call 911 now. You can also call or text 988 to reach the Suicide & Crisis Lifeline, any time."
	default:
		return "If you are in immediate danger, contact your local emergency services now. You can find international crisis lines at findahelpline.com."
	}
}

func crisisSignposting(jurisdiction string) string {
	switch normalizeJurisdiction(jurisdiction) {
	case "uk":
		return "If things feel overwhelming, Samaritans are available free on 116 123 at any time."
	case "us":
		return "If things feel overwhelming, you can call or text 988 at any time."
	default:
		return "If things feel overwhelming, please reach out to a local crisis line or someone you trust."
	}
}

func normalizeJurisdiction(jurisdiction string) string {
	switch strings.ToLower(strings.TrimSpace(jurisdiction)) {
	case "uk", "gb", "en-gb":
		return "uk"
	case "us", "en-us":
		return "us"
	default:
		return ""
	}
}
