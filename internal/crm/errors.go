package crm

import "errors"

var (
	// ErrCustomerNotFound is returned when no customer matches the phone key.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrConversationNotFound is returned when no conversation matches.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrTopicNotFound is returned when no active topic exists for a customer.
	ErrTopicNotFound = errors.New("topic not found")
)
