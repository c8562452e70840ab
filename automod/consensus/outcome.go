package consensus

// Final decision for one mention.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSpam
	OutcomeNotSpam
	// No judge reached a usable verdict. Treated the same as NOT_SPAM for moderation purposes.
	OutcomeInconclusive
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSpam:
		return "spam"
	case OutcomeNotSpam:
		return "not-spam"
	case OutcomeInconclusive:
		return "inconclusive"
	default:
		return "unknown"
	}
}
