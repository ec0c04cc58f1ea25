package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CalilDrissi/virtus/internal/pkg/response"
	"github.com/CalilDrissi/virtus/internal/service"
)

type ChatHandler struct {
	chats *service.ChatService
}

func NewChatHandler(chats *service.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

func (h *ChatHandler) Completions(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid", "invalid request body")
		return
	}
	if req.ModelID == "" {
		response.Error(c, http.StatusBadRequest, "invalid", "model_id is required")
		return
	}
	result, err := h.chats.Chat(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// StreamCompletions relays provider fragments as server-sent events. Events
// are content fragments, then a usage event, then done; errors mid-stream
// become a terminal error event since the status line is already written.
func (h *ChatHandler) StreamCompletions(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid", "invalid request body")
		return
	}
	if req.ModelID == "" {
		response.Error(c, http.StatusBadRequest, "invalid", "model_id is required")
		return
	}

	stream, _, err := h.chats.ChatStream(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeSSE(c, gin.H{"type": "error", "error": err.Error()})
			return
		}
		writeSSE(c, gin.H{"type": "content", "content": fragment})
		if c.Request.Context().Err() != nil {
			return
		}
	}

	if metered, ok := stream.(interface{ Usage() service.Usage }); ok {
		usage := metered.Usage()
		writeSSE(c, gin.H{"type": "usage", "input_tokens": usage.InputTokens, "output_tokens": usage.OutputTokens})
	}
	writeSSE(c, gin.H{"type": "done"})
}

func writeSSE(c *gin.Context, payload gin.H) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.Writer.WriteString("data: ")
	c.Writer.Write(data)
	c.Writer.WriteString("\n\n")
	c.Writer.Flush()
}
