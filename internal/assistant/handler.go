package assistant

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/llm"
)

// ChatPath is where the chat endpoint is mounted.
const ChatPath = "/api/chat"

const maxBodyBytes = 1 << 20

type chatRequest struct {
	Messages []llm.Message `json:"messages"`
}

type finishPart struct {
	FinishReason string `json:"finishReason"`
}

// NewHandler serves POST /api/chat. The reply is a data stream: one
// `0:"<chunk>"` line per text chunk, flushed as it arrives, then a
// `d:{"finishReason":...}` line. A failure after the first chunk is reported
// in-band as a `3:"<message>"` line.
func NewHandler(a *Assistant, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := httprouter.New()
	router.HandleMethodNotAllowed = true
	router.POST(ChatPath, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		serveChat(a, logger, w, r)
	})
	return router
}

func serveChat(a *Assistant, logger *zap.Logger, w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed request body: %v", err))
		return
	}
	if err := Validate(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		h := w.Header()
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Vercel-AI-Data-Stream", "v1")
		w.WriteHeader(http.StatusOK)
	}

	resp, err := a.Stream(r.Context(), req.Messages, func(chunk string) error {
		start()
		if err := writePart(w, '0', chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		logger.Warn("chat request failed", zap.Error(err))
		if !started {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		_ = writePart(w, '3', err.Error())
		return
	}

	start()
	_ = writePart(w, 'd', finishPart{FinishReason: finishReason(resp.StopReason)})
	if flusher != nil {
		flusher.Flush()
	}
}

func writePart(w io.Writer, code byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%c:%s\n", code, b)
	return err
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// finishReason maps provider stop reasons onto the data stream vocabulary.
func finishReason(reason string) string {
	switch strings.ToLower(reason) {
	case "length", "max_tokens":
		return "length"
	case "content_filter", "safety":
		return "content-filter"
	default:
		return "stop"
	}
}
