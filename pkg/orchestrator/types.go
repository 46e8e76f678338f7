package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// Response types emitted to the transport layer.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeError = "error"
)

// Response is the single chat response produced for one inbound message.
type Response struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	ImageData string `json:"imageData,omitempty"`
	ToolName  string `json:"toolName,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func newResponse(kind, content string) *Response {
	return &Response{
		ID:        uuid.NewString(),
		Content:   content,
		Type:      kind,
		Timestamp: time.Now().UnixMilli(),
	}
}

func textResponse(content string) *Response {
	return newResponse(TypeText, content)
}

func imageResponse(content, imageData, toolName string) *Response {
	r := newResponse(TypeImage, content)
	r.ImageData = imageData
	r.ToolName = toolName
	return r
}

func errorResponse() *Response {
	return newResponse(TypeError, "Sorry, something went wrong while handling that request. Please try again.")
}
