package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dop251/goja"
)

func newConsole(ctx context.Context, vm *goja.Runtime, logger *slog.Logger, nodeID string) *goja.Object {
	console := vm.NewObject()
	levels := map[string]slog.Level{
		"log":   slog.LevelDebug,
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, level := range levels {
		_ = console.Set(name, func(call goja.FunctionCall) goja.Value {
			if logger.Enabled(ctx, level) {
				logger.Log(ctx, level, "code node console", "node_id", nodeID, "output", formatArgs(call.Arguments))
			}
			return goja.Undefined()
		})
	}
	return console
}

func formatArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch v := export(a).(type) {
		case string:
			parts = append(parts, v)
		case nil:
			parts = append(parts, a.String())
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, " ")
}
