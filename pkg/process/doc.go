// Package process implements the MentalProcess orchestrator.
//
// A Process maps a WorkingMemory and a parameter bag to an Outcome: either
// Done with the final memory, or a TailCall handing the current memory to a
// child process. Execute follows tail calls iteratively. The child's memory
// becomes the result; the parent never resumes and no process may appear
// twice on the same chain.
//
// Branching is the declarative shape most souls need:
//
//	start -> pre-steps -> decision -> {branch_1 ... branch_n} -> end
//
// Effects (speak and log actions) are recorded by the Runtime and returned in
// the Result, so a process can be tested by inspecting its return value.
package process
