package rules

// Action is a single value-comparison rule.
//
// The set of implementations is closed: EqualsSay and NotEqualsSay.
type Action interface {
	// Applies reports whether the action matches the message text.
	Applies(text string) bool

	// Response returns the notification text produced when the action applies.
	Response() string

	action()
}

// EqualsSay applies when the message text equals Value.
type EqualsSay struct {
	Value string
	Say   string
}

// Applies implements Action.
func (a EqualsSay) Applies(text string) bool { return text == a.Value }

// Response implements Action.
func (a EqualsSay) Response() string { return a.Say }

func (EqualsSay) action() {}

// NotEqualsSay applies when the message text differs from Value.
type NotEqualsSay struct {
	Value string
	Say   string
}

// Applies implements Action.
func (a NotEqualsSay) Applies(text string) bool { return text != a.Value }

// Response implements Action.
func (a NotEqualsSay) Response() string { return a.Say }

func (NotEqualsSay) action() {}

// Mapping associates a topic with the ordered actions evaluated for it.
type Mapping struct {
	// Topic is compared with the message topic by exact string equality.
	Topic string

	// Actions are evaluated in order; the first applicable one wins.
	Actions []Action
}

// Topics returns the topic of every mapping, in mapping order.
// Duplicate topics are kept so callers see the configuration as written.
func Topics(mappings []Mapping) []string {
	topics := make([]string, 0, len(mappings))
	for _, m := range mappings {
		topics = append(topics, m.Topic)
	}
	return topics
}
