// Package schema describes and validates the structured output that
// cognitive steps request from a Processor.
//
// A Schema maps field names to types. Describe renders it as a JSON-schema
// object that adapters forward to models supporting structured output, and
// Validate checks the decoded value that comes back:
//
//	choices, _ := schema.Enum("learning", "teaching")
//	s := schema.Schema{"decision": choices}
//
//	if err := schema.Validate(s, map[string]any{"decision": "dancing"}); err != nil {
//	    // label "dancing" is not one of [learning teaching]
//	}
package schema
