package codec

import (
	"strings"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

// LastQueryIndex returns the index of the most recent user message that is a
// genuine query. User messages that only wrap a tool result between echoOpen
// and echoClose do not count. Without a genuine query the last index is
// returned.
func LastQueryIndex(messages []domain.Message, echoOpen, echoClose string) int {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != domain.RoleUser {
			continue
		}
		if strings.HasPrefix(m.Content, echoOpen) && strings.HasSuffix(m.Content, echoClose) {
			continue
		}
		return i
	}
	return len(messages) - 1
}
