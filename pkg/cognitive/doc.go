// Package cognitive runs single cognitive steps.
//
// A step builds a prompt from a WorkingMemory, dispatches it to a
// ports.Processor, optionally validates a structured answer against a
// schema.Schema or forwards a live stream to the Action Bus, and finally
// derives a new WorkingMemory plus a typed value:
//
//	exec := cognitive.NewExecutor(processor, cognitive.WithActionSink(sink))
//	memory, label, err := cognitive.Run(ctx, exec, memory,
//	    cognitive.MustDecision("what does the user need?", []string{"learning", "teaching"}))
//
// Built-in steps form a closed set of kinds (see Kind); custom steps are plain
// Step values.
package cognitive
