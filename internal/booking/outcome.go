package booking

// Kind tags a resolution outcome. Callers branch on the tag instead of
// sentinel values so "nothing open" can never be mistaken for a failure.
type Kind int

const (
	// Booked: a reservation was placed on Outcome.CourtID.
	Booked Kind = iota
	// NoAvailability: the provider reported nothing open for the slot.
	NoAvailability
	// AllTaken: every open court rejected the attempt (race lost).
	AllTaken
	// Transient: a network or provider error aborted resolution; no
	// candidate was consumed by it.
	Transient
	// AuthExpired: the credentials were rejected; resolution aborted.
	AuthExpired
)

func (k Kind) String() string {
	switch k {
	case Booked:
		return "booked"
	case NoAvailability:
		return "no_availability"
	case AllTaken:
		return "all_taken"
	case Transient:
		return "transient"
	case AuthExpired:
		return "auth_expired"
	}
	return "unknown"
}

// Error categories recorded in a request's last_error.
const (
	CategoryTransient   = "Transient"
	CategoryAuthExpired = "AuthExpired"
	CategoryTaken       = "Taken"
)

// Outcome is the terminal result of one contention resolution.
type Outcome struct {
	Kind     Kind
	CourtID  string // set when Kind == Booked
	Attempts int    // reservation submissions made
	Err      error  // detail for Transient / AuthExpired
}
