package event

// Type identifies a domain event
type Type string

const (
	TypeTicketCreated   Type = "ticket.created"
	TypeImageUploaded   Type = "ticket.image_uploaded"
	TypeOCRCompleted    Type = "ticket.ocr_completed"
	TypeOCRFailed       Type = "ticket.ocr_failed"
	TypeFieldUpdated    Type = "ticket.field_updated"
	TypeTicketApproved  Type = "ticket.approved"
	TypeApprovalFailed  Type = "ticket.approval_failed"
	TypeStatusChanged   Type = "ticket.status_changed"
	TypeDriverPayPosted Type = "driver_pay.posted"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case TypeTicketCreated,
		TypeImageUploaded,
		TypeOCRCompleted,
		TypeOCRFailed,
		TypeFieldUpdated,
		TypeTicketApproved,
		TypeApprovalFailed,
		TypeStatusChanged,
		TypeDriverPayPosted:
		return true
	default:
		return false
	}
}
