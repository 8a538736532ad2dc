package codec

import (
	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/reasoning"
	"github.com/tjfontaine/chat-template-codecs/internal/toolcall"
)

// CatalogStyle selects how function declarations are laid out in the
// system header.
type CatalogStyle int

const (
	// CatalogEmbedded puts each declaration on its own line, each line
	// prefixed with a newline.
	CatalogEmbedded CatalogStyle = iota

	// CatalogDelegated joins the declarations with newlines inside the
	// functions block the model's own chat template defines.
	CatalogDelegated
)

// String returns the configuration name of the style.
func (s CatalogStyle) String() string {
	if s == CatalogDelegated {
		return "chat-template-delegated"
	}
	return "embedded-in-system-header"
}

// Catalog is the fixed text around the serialized declarations.
type Catalog struct {
	Style     CatalogStyle
	Preamble  string
	Postamble string
}

// ToolTurn describes how tool results are rendered. A run of consecutive
// tool messages shares one role block.
type ToolTurn struct {
	// Role is the role name written after the role-start marker.
	Role string

	// Header follows the role name once per block.
	Header string

	// ItemPrefix and ItemSuffix wrap every tool result in the block.
	ItemPrefix string
	ItemSuffix string
}

// Reasoning configures the scratchpad handling of a family. Families
// without a scratchpad leave Family.Reasoning nil.
type Reasoning struct {
	// Dialects are tried in order when splitting assistant text.
	Dialects reasoning.Set

	// Layout controls the bytes around an injected block.
	Layout reasoning.Layout

	// Format maps the requested effort to the dialect the generation cue
	// opens. Parse maps it to the dialect completions are split with.
	Format map[domain.Effort]string
	Parse  map[domain.Effort]string

	// CueSuffix follows the open tag of the generation cue.
	CueSuffix string

	// KeepLaterCloses takes a parsed completion's cleaned text after the
	// first close tag instead of the last.
	KeepLaterCloses bool
}

// Family is the complete description of one model family's chat template.
// Every literal marker lives here; the codec itself holds no family-specific
// text.
type Family struct {
	Name        string
	Aliases     []string
	Description string

	// RoleStart opens a role block ("<|im_start|>"); RoleEnd closes it,
	// including the trailing newline.
	RoleStart string
	RoleEnd   string

	// Persona is the system text used when the conversation has no leading
	// system message. An empty persona emits no system block at all unless
	// functions are declared.
	Persona string

	// SystemSeparator follows a non-empty system text when the catalog is
	// appended to it.
	SystemSeparator string

	Catalog  Catalog
	ToolTurn ToolTurn

	// EchoOpen and EchoClose mark a user message that merely wraps a tool
	// result; such messages do not start a new query.
	EchoOpen  string
	EchoClose string

	Reasoning *Reasoning
	Calls     toolcall.Grammar
}
