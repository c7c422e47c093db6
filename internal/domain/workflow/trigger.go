package workflow

import "strings"

// Trigger is an action that moves a ticket between statuses
type Trigger string

const (
	TriggerCompleteOCR Trigger = "COMPLETE_OCR"
	TriggerApprove     Trigger = "APPROVE"
	TriggerInvoice     Trigger = "INVOICE"
	TriggerPay         Trigger = "PAY"
	TriggerCancel      Trigger = "CANCEL"
)

func (t Trigger) String() string {
	return string(t)
}

// ParseTrigger accepts any letter case and rejects unknown names.
func ParseTrigger(s string) (Trigger, error) {
	t := Trigger(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TriggerCompleteOCR, TriggerApprove, TriggerInvoice, TriggerPay, TriggerCancel:
		return t, nil
	}
	return "", ErrUnknownTrigger
}
