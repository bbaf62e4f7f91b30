package dailybrief

import "context"

// Message is one outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Headers map[string]string
}

// SendResult is either Sent or Rejected.
type SendResult interface {
	sendResult()
}

// Sent is returned when the provider accepted the message.
type Sent struct {
	ID string
}

// Rejected is returned when the provider refused the message or the call failed.
type Rejected struct {
	Err error
}

func (Sent) sendResult()     {}
func (Rejected) sendResult() {}

func (r Rejected) Error() string {
	if r.Err == nil {
		return "rejected"
	}
	return r.Err.Error()
}

// Mailer sends a single message. Transport errors are reported as Rejected.
type Mailer interface {
	Send(ctx context.Context, msg Message) SendResult
}

// EntityRefHeader correlates provider webhook events with an issue.
const EntityRefHeader = "X-Entity-Ref-ID"
