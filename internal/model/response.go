package model

// AgentResponse is the output of any handler. Every branch of the pipeline
// produces one; nothing is silently dropped.
type AgentResponse struct {
	Data                 map[string]any
	Pending              *PendingAction
	Message              string
	ReferenceCode        string
	Success              bool
	RequiresConfirmation bool
}

// Reply builds a plain successful response.
func Reply(message string) AgentResponse {
	return AgentResponse{Success: true, Message: message}
}
