package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/chatflow/pkg/domain"
)

// LogHooks returns engine hooks that log every lifecycle event at debug
// level, and failed code nodes at warn level.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter", "session_id", e.SessionID, "node_id", e.NodeID, "type", e.NodeType)
		},
		OnPause: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "pause", "session_id", e.SessionID, "node_id", e.NodeID, "type", e.NodeType)
		},
		OnFinish: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "finish", "session_id", e.SessionID, "node_id", e.NodeID)
		},
		OnCodeExecuted: func(ctx context.Context, e *domain.CodeEvent) {
			if !e.Success {
				logger.WarnContext(ctx, "code node failed",
					"session_id", e.SessionID,
					"node_id", e.NodeID,
					"duration", e.Duration,
					"err", e.Error,
				)
				return
			}
			logger.DebugContext(ctx, "code node executed", "session_id", e.SessionID, "node_id", e.NodeID, "duration", e.Duration)
		},
	}
}
