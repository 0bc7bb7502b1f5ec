package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer

	sanitizer Sanitizer
	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithTextHandlerSanitizer sets the input limits applied to each response.
func WithTextHandlerSanitizer(s Sanitizer) TextHandlerOption {
	return func(h *TextHandler) {
		h.sanitizer = s
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump reads lines in the background so Input can honour cancellation.
func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')

		// If we got text (even with EOF), send it
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err != io.EOF {
				h.inputChan <- inputResult{err: err}
			}
			close(h.inputChan)
			return
		}
	}
}

// Output prints messages in order. Branch prompts list their options numbered from 1.
func (h *TextHandler) Output(ctx context.Context, reply *flow.Reply) error {
	for _, msg := range reply.Messages {
		fmt.Fprintln(h.Writer, strings.TrimSpace(h.render(msg.Content)))
		for i, opt := range msg.Options {
			fmt.Fprintf(h.Writer, "  %d) %s\n", i+1, opt)
		}
	}
	if reply.Notice != "" {
		return h.SystemOutput(ctx, reply.Notice)
	}
	return nil
}

func (h *TextHandler) render(content string) string {
	if h.Renderer == nil {
		return content
	}
	rendered, err := h.Renderer(content)
	if err != nil {
		return content
	}
	return rendered
}

// Input prompts until a valid line is read.
func (h *TextHandler) Input(ctx context.Context, awaiting *flow.Awaiting) (flow.Response, error) {
	// Ensure the pump is running
	h.initPump()

	for {
		// Only show prompt if context is not yet done
		select {
		case <-ctx.Done():
			return flow.Response{}, ctx.Err()
		default:
			fmt.Fprint(h.Writer, "> ")
		}

		select {
		case <-ctx.Done():
			return flow.Response{}, ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return flow.Response{}, io.EOF
			}
			if res.err != nil {
				return flow.Response{}, res.err
			}

			clean, err := h.sanitizer.Clean(strings.TrimSpace(res.text))
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			return toResponse(clean, awaiting), nil
		}
	}
}

// toResponse maps a typed option number to its zero-based branch index.
func toResponse(text string, awaiting *flow.Awaiting) flow.Response {
	if awaiting != nil && awaiting.Type == domain.NodeTypeBranch {
		if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(awaiting.Options) {
			return flow.Response{Option: n - 1}
		}
		return flow.Response{Option: text}
	}
	return flow.Response{Input: text}
}

// SystemOutput prints a meta-message with a "[System]" prefix.
func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	_, err := fmt.Fprintf(h.Writer, "[System] %s\n", msg)
	return err
}
