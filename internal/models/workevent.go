package models

import "time"

// WorkEventType is the working-time taxonomy consumed by downstream
// payroll/working-time systems.
type WorkEventType string

const (
	WorkEventDrive     WorkEventType = "DRIVE"
	WorkEventOtherWork WorkEventType = "OTHER_WORK"
	WorkEventBreak     WorkEventType = "BREAK"
	WorkEventUnknown   WorkEventType = "UNKNOWN"
)

// WorkEventTypeForState maps a tachograph drive state to the work-event
// taxonomy.
func WorkEventTypeForState(state DriveState) WorkEventType {
	switch state {
	case DriveStateDrive:
		return WorkEventDrive
	case DriveStateWork:
		return WorkEventOtherWork
	case DriveStateRest:
		return WorkEventBreak
	default:
		return WorkEventUnknown
	}
}

// WorkEvent is published whenever a genuinely new drive state is recorded
// for a resolvable driver.
type WorkEvent struct {
	ID            string        `json:"id"`
	DriverID      string        `json:"driver_id"`
	WorkEventType WorkEventType `json:"work_event_type"`
	Time          time.Time     `json:"time"`
}
