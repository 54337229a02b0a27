package domain

import "fmt"

type Status string

const (
	StatusSubmitted                            Status = "submitted"
	StatusPendingStudyPaymentVerification      Status = "pending_study_payment_verification"
	StatusStudyInProgress                      Status = "study_in_progress"
	StatusStudyCompleted                       Status = "study_completed"
	StatusQuotePending                         Status = "quote_pending"
	StatusQuoteSent                            Status = "quote_sent"
	StatusQuoteAccepted                        Status = "quote_accepted"
	StatusQuoteRejected                        Status = "quote_rejected"
	StatusPendingProductionPaymentVerification Status = "pending_production_payment_verification"
	StatusInProduction                         Status = "in_production"
	StatusPendingResponse                      Status = "pending_response"
	StatusProductionCompleted                  Status = "production_completed"
	StatusReadyForPickup                       Status = "ready_for_pickup"
	StatusOutForDelivery                       Status = "out_for_delivery"
	StatusDelivered                            Status = "delivered"
	StatusCompleted                            Status = "completed"
	StatusCancelled                            Status = "cancelled"
	StatusRefundRequested                      Status = "refund_requested"
	StatusRefunded                             Status = "refunded"
)

// allStatuses is the fixed state set in pipeline order. Listings that return
// statuses (allowed transitions, error payloads) follow this order.
var allStatuses = []Status{
	StatusSubmitted,
	StatusPendingStudyPaymentVerification,
	StatusStudyInProgress,
	StatusStudyCompleted,
	StatusQuotePending,
	StatusQuoteSent,
	StatusQuoteAccepted,
	StatusQuoteRejected,
	StatusPendingProductionPaymentVerification,
	StatusInProduction,
	StatusPendingResponse,
	StatusProductionCompleted,
	StatusReadyForPickup,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCompleted,
	StatusCancelled,
	StatusRefundRequested,
	StatusRefunded,
}

var statusOrder = func() map[Status]int {
	m := make(map[Status]int, len(allStatuses))
	for i, s := range allStatuses {
		m[s] = i
	}
	return m
}()

// AllStatuses returns a copy of the state set.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a raw string into a Status, rejecting values outside
// the state set.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown case status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

type ServiceTier string

const (
	ServiceTierStudyOnly    ServiceTier = "study_only"
	ServiceTierFullSolution ServiceTier = "full_solution"
)

type DeliveryMethod string

const (
	DeliveryMethodPickup   DeliveryMethod = "pickup"
	DeliveryMethodDelivery DeliveryMethod = "delivery"
)
