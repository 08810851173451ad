// Package characters defines the persona registry.
package characters

// Character is one selectable persona. The system prompt and sampling
// options feed the model backend; the rest is presentation for the browser
// app.
type Character struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Emoji       string  `json:"emoji"`
	Greeting    string  `json:"greeting"`
	System      string  `json:"-"`
	Temperature float64 `json:"-"`
	MaxTokens   int     `json:"-"`
}

// Voice describes how the browser should render a character's speech.
type Voice struct {
	Voice   string  `json:"voice"`
	Rate    float64 `json:"rate"`
	Pitch   float64 `json:"pitch"`
	Volume  float64 `json:"volume"`
	Effects Effects `json:"effects"`
}

// Effects are normalized 0..1 audio effect levels, except Lowpass where 1.0
// means no filtering.
type Effects struct {
	Reverb     float64 `json:"reverb"`
	Echo       float64 `json:"echo"`
	Distortion float64 `json:"distortion"`
	Lowpass    float64 `json:"lowpass"`
}

// SpeechConfig is the static voice table served to the browser.
type SpeechConfig struct {
	SpeechEnabled   bool             `json:"speechEnabled"`
	CharacterVoices map[string]Voice `json:"characterVoices"`
}

// DefaultID is the persona used when a request names an unknown character.
const DefaultID = "ghost"

// Registry resolves character IDs to personas.
type Registry struct {
	byID  map[string]*Character
	order []string
}

// NewRegistry builds the default Halloween cast.
func NewRegistry() *Registry {
	cast := []*Character{
		{
			ID:       "ghost",
			Name:     "SpookyGPT",
			Emoji:    "👻",
			Greeting: "👻 Boo! I'm SpookyGPT! Ask me anything... if you dare.",
			System: "You are SpookyGPT, a playful ghost haunting a Halloween party. " +
				"Answer helpfully but keep a spooky, mischievous tone. Keep answers short, " +
				"two or three sentences, and sprinkle in ghostly flavor.",
			Temperature: 0.8,
			MaxTokens:   220,
		},
		{
			ID:       "vampire",
			Name:     "Count Vlad",
			Emoji:    "🧛",
			Greeting: "🧛 Good evening... I've been expecting you. Velcome to my castle.",
			System: "You are Count Vlad, an ancient and theatrical vampire. Speak with " +
				"old-world formality, dramatic flair, and the occasional remark about the " +
				"centuries you have seen. Keep answers short, two or three sentences.",
			Temperature: 0.8,
			MaxTokens:   220,
		},
		{
			ID:       "witch",
			Name:     "Morgana",
			Emoji:    "🧙",
			Greeting: "🧙 Ahh, a visitor! Come closer, dearie, the cauldron's just warming up.",
			System: "You are Morgana, a cackling witch who answers questions as if every " +
				"one were an ingredient for a potion. Be warm but wicked, and keep answers " +
				"short, two or three sentences.",
			Temperature: 0.9,
			MaxTokens:   220,
		},
		{
			ID:       "werewolf",
			Name:     "Lupo",
			Emoji:    "🐺",
			Greeting: "🐺 *sniff sniff* ...You smell like questions. Out with them, before the moon rises.",
			System: "You are Lupo, a gruff werewolf barely keeping his temper ahead of the " +
				"full moon. Answer in short growled sentences with the occasional howl. " +
				"Keep answers short, two or three sentences.",
			Temperature: 0.85,
			MaxTokens:   200,
		},
		{
			ID:       "zombie",
			Name:     "Murray",
			Emoji:    "🧟",
			Greeting: "🧟 Braaains... I mean, hello. Ask Murray... anything...",
			System: "You are Murray, a slow but surprisingly thoughtful zombie. Speak in " +
				"halting fragments with ellipses, occasionally mention brains, but still " +
				"give genuinely useful answers. Keep answers short, two or three sentences.",
			Temperature: 0.75,
			MaxTokens:   180,
		},
	}

	r := &Registry{byID: make(map[string]*Character, len(cast))}
	for _, c := range cast {
		r.byID[c.ID] = c
		r.order = append(r.order, c.ID)
	}
	return r
}

// Resolve returns the persona for the given ID, falling back to the default
// ghost for unknown or empty IDs. It never fails.
func (r *Registry) Resolve(id string) *Character {
	if c, ok := r.byID[id]; ok {
		return c
	}
	return r.byID[DefaultID]
}

// All returns the cast in stable display order.
func (r *Registry) All() []*Character {
	out := make([]*Character, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Speech returns the static voice table. Voice names match what macOS and
// iOS ship with; the browser falls back on its own when one is missing.
func (r *Registry) Speech() SpeechConfig {
	return SpeechConfig{
		SpeechEnabled: true,
		CharacterVoices: map[string]Voice{
			"default": {
				Voice: "Daniel", Rate: 0.95, Pitch: 0.8, Volume: 1.0,
				Effects: Effects{Reverb: 0.3, Echo: 0.1, Distortion: 0, Lowpass: 1.0},
			},
			"ghost": {
				Voice: "Daniel", Rate: 0.9, Pitch: 0.7, Volume: 1.0,
				Effects: Effects{Reverb: 0.5, Echo: 0.3, Distortion: 0, Lowpass: 0.9},
			},
			"vampire": {
				Voice: "Daniel", Rate: 0.85, Pitch: 0.6, Volume: 1.0,
				Effects: Effects{Reverb: 0.4, Echo: 0.2, Distortion: 0, Lowpass: 1.0},
			},
			"witch": {
				Voice: "Moira", Rate: 1.05, Pitch: 1.3, Volume: 1.0,
				Effects: Effects{Reverb: 0.2, Echo: 0.15, Distortion: 0.1, Lowpass: 1.0},
			},
			"werewolf": {
				Voice: "Ralph", Rate: 0.9, Pitch: 0.5, Volume: 1.0,
				Effects: Effects{Reverb: 0.1, Echo: 0, Distortion: 0.35, Lowpass: 0.7},
			},
			"zombie": {
				Voice: "Grandpa", Rate: 0.65, Pitch: 0.4, Volume: 1.0,
				Effects: Effects{Reverb: 0.2, Echo: 0.25, Distortion: 0.2, Lowpass: 0.6},
			},
		},
	}
}
