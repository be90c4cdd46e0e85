package notifier

// Test hooks for pointing the carrier and chat adapters at local servers.

func (n *SMSNotifier) SetTwilioBaseURL(u string) { n.twilioBaseURL = u }

func (n *SMSNotifier) SetVonageBaseURL(u string) { n.vonageBaseURL = u }

func (n *SlackNotifier) SetAPIBaseURL(u string) { n.apiBaseURL = u }
