package cognitive

import "fmt"

// Kind is the closed set of built-in cognitive step kinds.
type Kind int

const (
	KindExternalDialog Kind = iota + 1
	KindInternalMonologue
	KindDecision
	KindMentalQuery
	KindBrainstorm
	KindInstruction
	KindSummarize
)

// Kinds lists every known kind in declaration order.
var Kinds = []Kind{
	KindExternalDialog,
	KindInternalMonologue,
	KindDecision,
	KindMentalQuery,
	KindBrainstorm,
	KindInstruction,
	KindSummarize,
}

func (k Kind) String() string {
	switch k {
	case KindExternalDialog:
		return "externalDialog"
	case KindInternalMonologue:
		return "internalMonologue"
	case KindDecision:
		return "decision"
	case KindMentalQuery:
		return "mentalQuery"
	case KindBrainstorm:
		return "brainstorm"
	case KindInstruction:
		return "instruction"
	case KindSummarize:
		return "summarize"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind resolves the string form produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown cognitive step kind: %q", s)
}

// Verb is how an entry produced by this kind is narrated, e.g. "Samantha said: ...".
// Kinds that append raw completions return an empty verb.
func (k Kind) Verb() string {
	switch k {
	case KindExternalDialog:
		return "said"
	case KindInternalMonologue:
		return "thought"
	case KindDecision:
		return "decided"
	case KindMentalQuery:
		return "evaluated"
	case KindBrainstorm:
		return "brainstormed"
	case KindSummarize:
		return "summarized"
	case KindInstruction:
		return ""
	default:
		return ""
	}
}

// Region is the memory region new entries of this kind are placed in.
func (k Kind) Region() string {
	switch k {
	case KindSummarize:
		return "summary"
	case KindExternalDialog, KindInternalMonologue, KindDecision,
		KindMentalQuery, KindBrainstorm, KindInstruction:
		return ""
	default:
		return ""
	}
}

// DefaultName is the step name used in logs and metrics when none is set.
func (k Kind) DefaultName() string {
	return k.String()
}
