package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeLeaveSubmitted = "leave.submitted"
	EventTypeLeaveApproved  = "leave.approved"
	EventTypeLeaveRejected  = "leave.rejected"
	EventTypeQuotaDeducted  = "quota.deducted"
)

func newBase(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type LeaveSubmittedEvent struct {
	BaseEvent
	LeaveID    string `json:"leave_id"`
	UserID     string `json:"user_id"`
	ApproverID string `json:"approver_id"`
	Category   string `json:"category"`
	Days       int    `json:"days"`
	Status     string `json:"status"`
}

func NewLeaveSubmittedEvent(leaveID, userID, approverID, category string, days int, status string) *LeaveSubmittedEvent {
	return &LeaveSubmittedEvent{
		BaseEvent: newBase(EventTypeLeaveSubmitted, map[string]interface{}{
			"leave_id":    leaveID,
			"user_id":     userID,
			"approver_id": approverID,
			"category":    category,
			"days":        days,
			"status":      status,
		}),
		LeaveID:    leaveID,
		UserID:     userID,
		ApproverID: approverID,
		Category:   category,
		Days:       days,
		Status:     status,
	}
}

// LeaveDecidedEvent is published for both approvals and rejections; the
// event type tells them apart.
type LeaveDecidedEvent struct {
	BaseEvent
	LeaveID   string `json:"leave_id"`
	UserID    string `json:"user_id"`
	DeciderID string `json:"decider_id"`
}

func NewLeaveApprovedEvent(leaveID, userID, deciderID string) *LeaveDecidedEvent {
	return newDecided(EventTypeLeaveApproved, leaveID, userID, deciderID)
}

func NewLeaveRejectedEvent(leaveID, userID, deciderID string) *LeaveDecidedEvent {
	return newDecided(EventTypeLeaveRejected, leaveID, userID, deciderID)
}

func newDecided(eventType, leaveID, userID, deciderID string) *LeaveDecidedEvent {
	return &LeaveDecidedEvent{
		BaseEvent: newBase(eventType, map[string]interface{}{
			"leave_id":   leaveID,
			"user_id":    userID,
			"decider_id": deciderID,
		}),
		LeaveID:   leaveID,
		UserID:    userID,
		DeciderID: deciderID,
	}
}

type QuotaDeductedEvent struct {
	BaseEvent
	LeaveID  string `json:"leave_id"`
	UserID   string `json:"user_id"`
	Category string `json:"category"`
	Days     int    `json:"days"`
	Before   int    `json:"before"`
	After    int    `json:"after"`
}

func NewQuotaDeductedEvent(leaveID, userID, category string, days, before, after int) *QuotaDeductedEvent {
	return &QuotaDeductedEvent{
		BaseEvent: newBase(EventTypeQuotaDeducted, map[string]interface{}{
			"leave_id": leaveID,
			"user_id":  userID,
			"category": category,
			"days":     days,
			"before":   before,
			"after":    after,
		}),
		LeaveID:  leaveID,
		UserID:   userID,
		Category: category,
		Days:     days,
		Before:   before,
		After:    after,
	}
}
