package crm

import "strings"

// TopicType classifies what a customer is asking for.
type TopicType string

const (
	TopicProductInquiry TopicType = "product_inquiry"
	TopicServiceRequest TopicType = "service_request"
	TopicSupport        TopicType = "support"
)

// topicRules is the ordered keyword table driving topic classification.
// First matching rule wins; no match falls through to TopicSupport.
var topicRules = []struct {
	keywords  []string
	topicType TopicType
}{
	{
		keywords:  []string{"broken", "not working", "repair", "damaged", "cracked", "fix", "service", "replace"},
		topicType: TopicServiceRequest,
	},
	{
		keywords:  []string{"price", "buy", "interested", "cost", "purchase", "available", "in stock", "how much"},
		topicType: TopicProductInquiry,
	},
}

// deviceVocabulary are the device hints embedded in topic titles.
var deviceVocabulary = []string{"iPhone", "MacBook", "iPad", "AirPods", "Watch", "iMac"}

// ClassifyTopic maps an opening customer message onto a topic type.
func ClassifyTopic(message string) TopicType {
	lower := strings.ToLower(message)
	for _, rule := range topicRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.topicType
			}
		}
	}
	return TopicSupport
}

// DetectDevice returns the first known device name mentioned in the message,
// or "" when none is found.
func DetectDevice(message string) string {
	lower := strings.ToLower(message)
	for _, device := range deviceVocabulary {
		if strings.Contains(lower, strings.ToLower(device)) {
			return device
		}
	}
	return ""
}

// TopicTitle derives a short human title for a fresh topic.
func TopicTitle(message string, topicType TopicType) string {
	suffix := "Support"
	switch topicType {
	case TopicProductInquiry:
		suffix = "Inquiry"
	case TopicServiceRequest:
		suffix = "Service"
	}
	if device := DetectDevice(message); device != "" {
		return device + " " + suffix
	}
	return "General " + suffix
}
