package statemachine

import (
	"errors"
	"strings"

	"cafe-pos/models"
)

// Trigger names the operation that performs a transition
type Trigger string

const (
	TriggerSendToKitchen  Trigger = "send_to_kitchen"
	TriggerCancel         Trigger = "cancel"
	TriggerClose          Trigger = "close"
	TriggerSettle         Trigger = "settle"
	TriggerGatewayPayment Trigger = "gateway_payment"
)

// Transition defines a valid state change and the operation that performs it
type Transition struct {
	From    models.OrderStatus `json:"from"`
	To      models.OrderStatus `json:"to"`
	Trigger Trigger            `json:"trigger"`
}

// ErrInvalidTransition is wrapped by every error CanTransition returns
var ErrInvalidTransition = errors.New("invalid transition")

// validTransitions is the authoritative state machine definition
var validTransitions = []Transition{
	// Cashier dispatches a draft
	{From: models.StatusDraft, To: models.StatusSentToKitchen, Trigger: TriggerSendToKitchen},
	// Full payment on a draft dispatches it before completing
	{From: models.StatusDraft, To: models.StatusSentToKitchen, Trigger: TriggerSettle},
	// Verified gateway payment promotes a draft
	{From: models.StatusDraft, To: models.StatusSentToKitchen, Trigger: TriggerGatewayPayment},
	{From: models.StatusDraft, To: models.StatusCancelled, Trigger: TriggerCancel},
	{From: models.StatusSentToKitchen, To: models.StatusCancelled, Trigger: TriggerCancel},
	// Manual completion (pay-at-counter outside the ledger)
	{From: models.StatusSentToKitchen, To: models.StatusCompleted, Trigger: TriggerClose},
	{From: models.StatusSentToKitchen, To: models.StatusCompleted, Trigger: TriggerSettle},
}

type transitionKey struct {
	From    models.OrderStatus
	To      models.OrderStatus
	Trigger Trigger
}

// Build a lookup map for O(1) validation
var transitionMap = func() map[transitionKey]bool {
	m := make(map[transitionKey]bool)
	for _, t := range validTransitions {
		m[transitionKey{t.From, t.To, t.Trigger}] = true
	}
	return m
}()

// ValidTransitionsFrom returns all valid next states from a given state
func ValidTransitionsFrom(status models.OrderStatus) []models.OrderStatus {
	var nexts []models.OrderStatus
	seen := map[models.OrderStatus]bool{}
	for _, t := range validTransitions {
		if t.From == status && !seen[t.To] {
			nexts = append(nexts, t.To)
			seen[t.To] = true
		}
	}
	return nexts
}

// CanTransition checks if trigger may move an order from one state to another
func CanTransition(from, to models.OrderStatus, trigger Trigger) error {
	if transitionMap[transitionKey{From: from, To: to, Trigger: trigger}] {
		return nil
	}
	return errors.Join(ErrInvalidTransition, errors.New(
		string(from)+" → "+string(to)+" is not allowed via '"+string(trigger)+"'. "+
			"Valid transitions from "+string(from)+" are: "+describeValidFrom(from),
	))
}

func describeValidFrom(status models.OrderStatus) string {
	nexts := ValidTransitionsFrom(status)
	if len(nexts) == 0 {
		return "none (terminal state)"
	}
	names := make([]string, len(nexts))
	for i, s := range nexts {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// GetAllTransitions returns the full state machine for documentation
func GetAllTransitions() []Transition {
	return validTransitions
}

// ValidLineStatus reports whether s is a kitchen line status
func ValidLineStatus(s models.LineStatus) bool {
	switch s {
	case models.LinePending, models.LinePreparing, models.LineReady, models.LineServed:
		return true
	}
	return false
}

// LineStatuses lists the kitchen line statuses in preparation order
func LineStatuses() []models.LineStatus {
	return []models.LineStatus{models.LinePending, models.LinePreparing, models.LineReady, models.LineServed}
}
