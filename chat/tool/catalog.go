package tool

import (
	"fmt"

	contractx "github.com/6t3media/chatbot-backend/chat/contract"
)

const ToolCreatePipedriveDeal = "create_pipedrive_deal"

var leadFields = []string{"name", "email", "phone"}

// Catalog returns the functions the model may call during the first
// completion of a turn.
func Catalog() []contractx.ToolSchema {
	return []contractx.ToolSchema{
		{
			Name:        ToolCreatePipedriveDeal,
			Description: "Record a sales lead once the user has shared their full name, email address, and phone number.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":  map[string]any{"type": "string", "description": "The user's full name"},
					"email": map[string]any{"type": "string", "description": "The user's email address"},
					"phone": map[string]any{"type": "string", "description": "The user's phone number"},
				},
				"required": leadFields,
			},
		},
	}
}

// IsKnown reports whether the named function exists in the catalog.
func IsKnown(name string) bool {
	return name == ToolCreatePipedriveDeal
}

// LeadFromInvocation validates a create_pipedrive_deal invocation and
// extracts the lead. A missing or empty required argument makes the
// invocation malformed; it must be rejected before any CRM work.
func LeadFromInvocation(inv contractx.ToolInvocation) (contractx.Lead, error) {
	if inv.Name != ToolCreatePipedriveDeal {
		return contractx.Lead{}, fmt.Errorf("%w: unknown function %q", contractx.ErrMalformedToolCall, inv.Name)
	}
	for _, field := range leadFields {
		if inv.Argument(field) == "" {
			return contractx.Lead{}, fmt.Errorf("%w: missing %s", contractx.ErrMalformedToolCall, field)
		}
	}
	return contractx.Lead{
		Name:  inv.Argument("name"),
		Email: inv.Argument("email"),
		Phone: inv.Argument("phone"),
	}, nil
}
