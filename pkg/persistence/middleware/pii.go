package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// Mask replaces sensitive values in stored sessions.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SessionStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks variables whose names match
// any of the patterns. Answers to questions bound to such variables are masked
// in the history too, along with the user input that carried them.
//
// Masking is one-way: a loaded session holds the masked values.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, session *domain.Session) error {
	// Clone so the caller's in-memory session keeps the real values.
	cloned := *session
	cloned.Variables = deepCopyMap(session.Variables)
	cloned.History = make([]domain.HistoryEntry, len(session.History))
	copy(cloned.History, session.History)

	maskMap(cloned.Variables, m.patterns)
	m.maskHistory(cloned.History)

	if err := m.next.Save(ctx, &cloned); err != nil {
		return err
	}
	session.Version = cloned.Version
	session.UpdatedAt = cloned.UpdatedAt
	return nil
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) sensitive(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func (m *piiMiddleware) maskHistory(entries []domain.HistoryEntry) {
	for i, e := range entries {
		if e.Type != string(domain.NodeTypeQuestion) {
			continue
		}

		var masked any
		switch c := e.Content.(type) {
		case domain.QuestionAnswer:
			if !m.sensitive(c.Variable) {
				continue
			}
			c.Answer = Mask
			masked = c
		case map[string]any:
			v, _ := c["variable"].(string)
			if !m.sensitive(v) {
				continue
			}
			cp := deepCopyMap(c)
			cp["answer"] = Mask
			masked = cp
		default:
			continue
		}
		entries[i].Content = masked

		if i > 0 && entries[i-1].Type == domain.EntryUserInput && entries[i-1].NodeID == e.NodeID {
			entries[i-1].Content = Mask
		}
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
