package answer

import (
	"strings"

	"github.com/mindwell/buddy/internal/textmatch"
)

// Blueprint is the templated answer skeleton selected before any retrieved
// content is merged in.
type Blueprint struct {
	Topic    string
	Title    string
	Summary  string
	Sections []Section
}

// topicKeywords maps question phrases to blueprint topics. Order matters:
// more specific phrases come first so "post-traumatic stress disorder"
// never falls through to the stress blueprint.
var topicKeywords = []struct {
	phrase string
	topic  string
}{
	{"post-traumatic stress disorder", "ptsd"},
	{"ptsd", "ptsd"},
	{"attention deficit", "adhd"},
	{"adhd", "adhd"},
	{"obsessive-compulsive", "ocd"},
	{"obsessive compulsive", "ocd"},
	{"ocd", "ocd"},
	{"autism", "autism"},
	{"autistic", "autism"},
	{"depress", "depression"},
	{"low mood", "depression"},
	{"anxiety", "anxiety"},
	{"panic", "anxiety"},
	{"insomnia", "sleep"},
	{"sleep", "sleep"},
	{"burnout", "stress"},
	{"stress", "stress"},
}

var blueprints = map[string]Blueprint{
	"adhd": {
		Topic:   "adhd",
		Title:   "Understanding ADHD",
		Summary: "ADHD (attention deficit hyperactivity disorder) affects concentration, impulse control and activity levels. It is common, well understood and manageable with the right support.",
		Sections: []Section{
			{Heading: "Overview", Text: "ADHD is a neurodevelopmental condition. People with ADHD may find it hard to focus on tasks, sit still for long periods or hold back impulsive reactions. It usually starts in childhood but is often recognised only in adulthood."},
			{Heading: "Common signs", Text: "Difficulty concentrating or finishing tasks, restlessness, forgetfulness, interrupting others, and acting without thinking things through."},
			{Heading: "Next steps", Text: "Speak to your GP if these signs affect your daily life. Assessment pathways, coaching and both medical and non-medical support are available."},
		},
	},
	"anxiety": {
		Topic:   "anxiety",
		Title:   "Understanding anxiety",
		Summary: "Anxiety is the body's response to perceived threat. Occasional anxiety is normal; persistent anxiety that interferes with daily life is treatable.",
		Sections: []Section{
			{Heading: "Overview", Text: "Anxiety becomes a problem when worry is hard to control, happens most days or stops you doing things. Generalised anxiety, panic attacks and phobias are all common and respond well to support."},
			{Heading: "Common signs", Text: "Persistent worry, a racing heart, trouble sleeping, avoiding situations, and physical symptoms like tension or nausea."},
			{Heading: "Next steps", Text: "Breathing exercises and talking therapies help many people. If anxiety is affecting your daily life, speak to your GP about support options."},
		},
	},
	"depression": {
		Topic:   "depression",
		Title:   "Understanding depression",
		Summary: "Depression is more than feeling sad. It is a persistent low mood that affects how you think, feel and manage day to day, and it is treatable.",
		Sections: []Section{
			{Heading: "Overview", Text: "Depression can make ordinary tasks feel impossible and drain interest from things you used to enjoy. It ranges from mild to severe and usually eases with the right combination of support, therapy and sometimes medication."},
			{Heading: "Common signs", Text: "Lasting low mood, loss of interest, changes to sleep or appetite, low energy, difficulty concentrating, and feelings of worthlessness."},
			{Heading: "Next steps", Text: "If low mood has lasted more than two weeks, talk to your GP. Self-referral to talking therapies is also available in many areas."},
		},
	},
	"ptsd": {
		Topic:   "ptsd",
		Title:   "Understanding PTSD",
		Summary: "Post-traumatic stress disorder can develop after frightening or distressing events. Effective, evidence-based treatments exist.",
		Sections: []Section{
			{Heading: "Overview", Text: "PTSD involves re-experiencing a traumatic event through flashbacks or nightmares, alongside feeling constantly on edge. It can appear weeks or years after the event."},
			{Heading: "Common signs", Text: "Flashbacks, nightmares, avoiding reminders of the event, feeling jumpy or on guard, and difficulty sleeping or concentrating."},
			{Heading: "Next steps", Text: "Trauma-focused talking therapies are recommended treatments. Speak to your GP, who can refer you to a specialist service."},
		},
	},
	"ocd": {
		Topic:   "ocd",
		Title:   "Understanding OCD",
		Summary: "Obsessive-compulsive disorder involves unwanted intrusive thoughts and repetitive behaviours done to relieve the anxiety those thoughts cause.",
		Sections: []Section{
			{Heading: "Overview", Text: "OCD is not about being tidy. Obsessions are distressing thoughts or urges that keep returning; compulsions are the rituals used to neutralise them. Both can take up hours of each day."},
			{Heading: "Common signs", Text: "Intrusive unwanted thoughts, repeated checking or cleaning, needing things to feel 'just right', and seeking constant reassurance."},
			{Heading: "Next steps", Text: "Exposure-based talking therapy is the recommended first treatment. Your GP can refer you, or you can self-refer to talking therapies in many areas."},
		},
	},
	"autism": {
		Topic:   "autism",
		Title:   "Understanding autism",
		Summary: "Autism is a lifelong difference in how people experience the world and interact with others. It is not an illness, and support can make a real difference.",
		Sections: []Section{
			{Heading: "Overview", Text: "Autistic people may communicate, process sensory information and socialise differently. Every autistic person is different; many need little or no support, others benefit from adjustments at school, work or home."},
			{Heading: "Common signs", Text: "Finding social cues hard to read, preferring routine and predictability, intense focused interests, and sensitivity to sound, light or touch."},
			{Heading: "Next steps", Text: "If you think you or your child may be autistic, speak to your GP about an assessment referral. Support does not have to wait for a diagnosis."},
		},
	},
	"stress": {
		Topic:   "stress",
		Title:   "Managing stress",
		Summary: "Stress is the feeling of being under too much pressure. Short bursts are normal; prolonged stress wears down mental and physical health.",
		Sections: []Section{
			{Heading: "Overview", Text: "Stress becomes harmful when demands consistently outstrip your capacity to recover. Work pressure, money worries and caring responsibilities are common drivers, and burnout is the end state of unrelieved stress."},
			{Heading: "Common signs", Text: "Irritability, racing thoughts, poor sleep, headaches or muscle tension, and finding it hard to switch off."},
			{Heading: "Next steps", Text: "Identify the biggest pressure you can actually change, build in daily recovery time, and talk to someone you trust. See your GP if stress is affecting your health."},
		},
	},
	"sleep": {
		Topic:   "sleep",
		Title:   "Sleep and mental health",
		Summary: "Sleep problems and mental health feed each other in both directions. Improving sleep is one of the most effective things you can do for your wellbeing.",
		Sections: []Section{
			{Heading: "Overview", Text: "Insomnia means regularly struggling to fall asleep, stay asleep or waking unrefreshed. Most sleep problems respond to changes in routine; persistent insomnia has effective structured treatments."},
			{Heading: "Common signs", Text: "Taking a long time to fall asleep, waking often in the night, waking early, and daytime tiredness or irritability."},
			{Heading: "Next steps", Text: "Keep regular sleep and wake times, wind down without screens, and limit caffeine after midday. Speak to your GP if problems persist beyond a month."},
		},
	},
}

// blueprintFor picks a skeleton for the question. Unknown topics get a
// generic skeleton built around the best topic candidate.
func blueprintFor(question string) Blueprint {
	candidates := textmatch.TopicCandidates(question)
	for _, kw := range topicKeywords {
		for _, candidate := range candidates {
			if strings.Contains(candidate, kw.phrase) {
				return blueprints[kw.topic]
			}
		}
	}

	topic := ""
	if len(candidates) > 0 {
		topic = candidates[0]
	}
	return genericBlueprint(topic)
}

func genericBlueprint(topic string) Blueprint {
	title := "What we found"
	summary := "Here is what we could verify about your question."
	if topic != "" {
		summary = "Here is what we could verify about \"" + topic + "\"."
	}
	return Blueprint{
		Topic:   topic,
		Title:   title,
		Summary: summary,
		Sections: []Section{
			{Heading: "Overview", Text: "We put together the most relevant verified information below. Everything cited links either to a page on this site or to an external source we checked before including it."},
		},
	}
}
