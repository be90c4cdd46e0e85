package webhook

// Thresholds configures the consecutive-failure counts that drive the
// endpoint health state machine.
type Thresholds struct {
	// FailingAfter is the consecutive-failure count beyond which an ACTIVE
	// endpoint transitions to FAILING.
	FailingAfter int
	// DisableAfter is the consecutive-failure count beyond which a FAILING
	// endpoint transitions to DISABLED.
	DisableAfter int
}

// DefaultThresholds match the production configuration.
var DefaultThresholds = Thresholds{FailingAfter: 5, DisableAfter: 20}

// NextStatus computes the endpoint status after a delivery outcome.
// consecutiveFailures is the counter value after the outcome was applied
// (0 on success). DISABLED is sticky: neither failures nor successes leave
// it; only an explicit re-enable does.
func NextStatus(current Status, consecutiveFailures int, t Thresholds) Status {
	if current == StatusDisabled {
		return StatusDisabled
	}
	switch {
	case consecutiveFailures == 0:
		return StatusActive
	case consecutiveFailures > t.DisableAfter:
		return StatusDisabled
	case consecutiveFailures > t.FailingAfter:
		return StatusFailing
	default:
		return current
	}
}
