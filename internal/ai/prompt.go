package ai

import (
	"fmt"
	"strings"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/crm"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/knowledge"
)

const defaultInstructions = `You are Charu, the WhatsApp assistant for a premium electronics retail store. You help customers with product enquiries, pricing, availability, service and repair requests, and order follow-ups.`

const behaviorRules = `COMMUNICATION STYLE:
- Keep responses short (2-3 sentences max), friendly, and actionable. This is WhatsApp, not email.
- NEVER use markdown formatting (no **bold**, *italics*, or bullet points with -).
- Answer in the language the customer writes in. Hinglish is fine.
- Quote prices only when the store context provides them. NEVER invent a price or a delivery date.
- For repair and service requests, collect the device model and the problem before promising anything.
- If you genuinely cannot answer from the store context, say you will check with the team and get back shortly.
- Never claim a human has already been notified unless the conversation says so.`

// BuildSystemPrompt assembles the system messages for one completion:
// store instructions, per-customer profile, the active topic, and any
// knowledge-base excerpts that matched the incoming message.
func BuildSystemPrompt(instructions string, customer *crm.Customer, topic *crm.Topic, entries []knowledge.Entry) []string {
	if strings.TrimSpace(instructions) == "" {
		instructions = defaultInstructions
	}
	system := []string{instructions, behaviorRules}

	if customer != nil {
		builder := strings.Builder{}
		builder.WriteString("Customer profile:\n")
		builder.WriteString(fmt.Sprintf("Name: %s\n", customer.Name))
		if customer.CustomerType != "" {
			builder.WriteString(fmt.Sprintf("Type: %s\n", customer.CustomerType))
		}
		if len(customer.Tags) > 0 {
			builder.WriteString(fmt.Sprintf("Tags: %s\n", strings.Join(customer.Tags, ", ")))
		}
		system = append(system, strings.TrimRight(builder.String(), "\n"))
	}

	if topic != nil {
		system = append(system, fmt.Sprintf("Current topic: %s (%s)", topic.Title, topic.Type))
	}

	if len(entries) > 0 {
		builder := strings.Builder{}
		builder.WriteString("Relevant store context:\n")
		for i, e := range entries {
			builder.WriteString(fmt.Sprintf("%d. %s: %s\n", i+1, e.Title, e.Content))
		}
		system = append(system, strings.TrimRight(builder.String(), "\n"))
	}

	return system
}

// HistoryMessages converts persisted conversation rows into chat turns.
// Agent and AI replies both read as assistant turns; system rows are skipped.
func HistoryMessages(history []crm.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		if strings.TrimSpace(msg.Body) == "" {
			continue
		}
		switch msg.Sender {
		case crm.SenderCustomer:
			out = append(out, ChatMessage{Role: ChatRoleUser, Content: msg.Body})
		case crm.SenderAI, crm.SenderAgent:
			out = append(out, ChatMessage{Role: ChatRoleAssistant, Content: msg.Body})
		}
	}
	return out
}
