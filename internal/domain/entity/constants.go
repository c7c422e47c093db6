package entity

// Pay methods accepted by the review table
const (
	PayMethodPerUnit    = "per_unit"
	PayMethodPercentage = "percentage"
	PayMethodHourly     = "hourly"
	PayMethodFlat       = "flat"
)

// ValidPayMethod reports whether m is an accepted pay method.
func ValidPayMethod(m string) bool {
	switch m {
	case PayMethodPerUnit, PayMethodPercentage, PayMethodHourly, PayMethodFlat:
		return true
	}
	return false
}

// History actions not driven by a status trigger
const (
	ActionCreated     = "CREATED"
	ActionFieldEdited = "FIELD_EDITED"
	ActionOCRAttached = "OCR_ATTACHED"
	ActionUploadFail  = "UPLOAD_FAILED"
)

// Session roles
const (
	RoleDriver     = "driver"
	RoleDispatcher = "dispatcher"
	RoleManager    = "manager"
	RoleAdmin      = "admin"
)

// SystemActor is recorded on history rows written by callbacks and workers
const SystemActor = "system"
