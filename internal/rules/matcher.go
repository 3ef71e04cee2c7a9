package rules

// FallbackPrefix precedes the raw message text when no action applies.
const FallbackPrefix = "Received message: "

// Decide returns the notification text for a message.
//
// See Match for the resolution rules.
func Decide(mappings []Mapping, topic, text string) string {
	say, _ := Match(mappings, topic, text)
	return say
}

// Match resolves the notification text for a message and reports whether a
// configured action produced it.
//
// Mappings whose topic equals topic are visited in order, and within each the
// actions are visited in order. The first action that applies to text wins.
// Without a match the result is FallbackPrefix + text and matched is false.
func Match(mappings []Mapping, topic, text string) (say string, matched bool) {
	for _, m := range mappings {
		if m.Topic != topic {
			continue
		}
		for _, a := range m.Actions {
			if a.Applies(text) {
				return a.Response(), true
			}
		}
	}
	return FallbackPrefix + text, false
}
