package domain

// ChatMessage is one rendered turn of a chat transcript. The chat frontend
// keeps its history in this shape.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InvocationRequest is the JSON body accepted by POST /invocations.
type InvocationRequest struct {
	Prompt    string `json:"prompt"`
	ActorID   string `json:"actor_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
}

// InvocationResponse is the non-streaming /invocations response body.
type InvocationResponse struct {
	Message string `json:"message"`
}
