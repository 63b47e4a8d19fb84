package domain

// MailKind selects the template used for an outgoing message.
type MailKind string

const (
	MailVerification      MailKind = "verification"
	MailResetRequest      MailKind = "reset_request"
	MailResetConfirmation MailKind = "reset_confirmation"
)

// Notification is a fire-and-forget email request.
type Notification struct {
	Kind MailKind
	To   string
	Name string
	Link string
}
