package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/chatflow/pkg/flow"
)

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
//
// Every reply is written as one JSON object. Each input line is either a
// response object ({"input": ..., "optionIndexOrLabel": ...}), a JSON
// scalar, or plain text.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder

	sanitizer Sanitizer
}

// JSONHandlerOption defines configuration for JSONHandler.
type JSONHandlerOption func(*JSONHandler)

// WithJSONHandlerSanitizer sets the input limits applied to string responses.
func WithJSONHandlerSanitizer(s Sanitizer) JSONHandlerOption {
	return func(h *JSONHandler) {
		h.sanitizer = s
	}
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer, opts ...JSONHandlerOption) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Output emits the reply as a single JSON line.
func (h *JSONHandler) Output(ctx context.Context, reply *flow.Reply) error {
	return h.Encoder.Encode(reply)
}

// Input reads one line and decodes it into a response.
func (h *JSONHandler) Input(ctx context.Context, awaiting *flow.Awaiting) (flow.Response, error) {
	for {
		if err := ctx.Err(); err != nil {
			return flow.Response{}, err
		}
		text, err := h.Reader.ReadString('\n')
		text = strings.TrimSpace(text)
		if text == "" {
			if err != nil {
				return flow.Response{}, err
			}
			continue
		}

		resp, perr := h.parseResponse(text)
		if perr != nil {
			if err := h.SystemOutput(ctx, perr.Error()); err != nil {
				return flow.Response{}, err
			}
			continue
		}
		return resp, nil
	}
}

func (h *JSONHandler) parseResponse(text string) (flow.Response, error) {
	if strings.HasPrefix(text, "{") {
		var resp flow.Response
		dec := json.NewDecoder(bytes.NewReader([]byte(text)))
		dec.UseNumber()
		if err := dec.Decode(&resp); err != nil {
			return flow.Response{}, fmt.Errorf("invalid response object: %w", err)
		}
		var err error
		if resp.Input, err = h.cleanValue(resp.Input); err != nil {
			return flow.Response{}, err
		}
		if resp.Option, err = h.cleanValue(resp.Option); err != nil {
			return flow.Response{}, err
		}
		return resp, nil
	}

	var val any
	if err := json.Unmarshal([]byte(text), &val); err != nil {
		// Fallback: plain text
		val = text
	}
	clean, err := h.cleanValue(val)
	if err != nil {
		return flow.Response{}, err
	}
	return flow.Response{Input: clean}, nil
}

// cleanValue sanitizes strings and narrows integral JSON numbers to int.
func (h *JSONHandler) cleanValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return h.sanitizer.Clean(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i), nil
		}
		return val.Float64()
	case float64:
		if val == float64(int(val)) {
			return int(val), nil
		}
	}
	return v, nil
}

// SystemOutput emits a meta-message as {"system": msg}.
func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(map[string]string{"system": msg})
}
