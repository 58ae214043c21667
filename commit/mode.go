package commit

// Mode selects the delivery semantics of a binding. Fixed at binding
// creation; it never changes mid-lifecycle.
type Mode int

const (
	// Manual delivers each record with a ReceiverOffset handle; the
	// application decides when positions become eligible for commit.
	Manual Mode = iota

	// AtMostOnce commits a batch's offsets before handing its records to the
	// application. Records are never redelivered, so a processing failure
	// after commit loses data.
	AtMostOnce

	// AutoCommit commits a batch's offsets only after the application has
	// fully processed the batch. A processing failure withholds the commit
	// and the batch is redelivered on restart.
	AutoCommit
)

func (m Mode) String() string {
	switch m {
	case Manual:
		return "manual"
	case AtMostOnce:
		return "at-most-once"
	case AutoCommit:
		return "auto-commit"
	default:
		return "unknown"
	}
}
