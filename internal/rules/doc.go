// Package rules decides the notification text for an inbound MQTT message.
//
// A Mapping ties one topic to an ordered list of Actions. Each Action is a
// value comparison plus the text to show when the comparison holds:
//
//	EqualsSay{Value: "open", Say: "Door opened!"}     // text == "open"
//	NotEqualsSay{Value: "ok", Say: "Pump fault"}      // text != "ok"
//
// # Resolution
//
// Mappings and their Actions are evaluated in declaration order and the first
// applicable Action wins. Topics are compared by exact string equality, never
// with MQTT wildcard semantics, and values are compared case-sensitively.
// When nothing applies the text is "Received message: " followed by the
// message itself.
//
// Order matters more than specificity:
//
//	actions: [NotEqualsSay{"a", "first"}, EqualsSay{"b", "second"}]
//	Decide(..., "b") == "first"
//
// # Thread Safety
//
// Every function in this package is pure. Mappings are never modified after
// construction and can be shared freely between goroutines.
package rules
