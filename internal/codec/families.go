package codec

import (
	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/reasoning"
	"github.com/tjfontaine/chat-template-codecs/internal/toolcall"
)

const (
	imStart = "<|im_start|>"
	imEnd   = "<|im_end|>\n"

	toolResponseOpen  = "<tool_response>"
	toolResponseClose = "</tool_response>"
)

const k2Preamble = "\n# Tools\nYou may call one or more functions to assist with the user query.\n\n" +
	"You are provided with function signatures within <tools></tools> XML tags:\n<tools>"

const k2Postamble = "\n</tools>\n\nFor each function call, return a json object with function name and arguments within <tool_call></tool_call> XML tags:\n<tool_call>\n" +
	`{"name": <function-name>, "arguments": <args-json-object>}` + "\n</tool_call>\n" +
	"You may use multiple <tool_call> blocks if multiple function calls are needed to fully address the request." + imEnd

// The K2-OSS postamble lacks the newline after the example block.
const k2OSSPostamble = "\n</tools>\n\nFor each function call, return a json object with function name and arguments within <tool_call></tool_call> XML tags:\n<tool_call>\n" +
	`{"name": <function-name>, "arguments": <args-json-object>}` + "\n</tool_call>" +
	"You may use multiple <tool_call> blocks if multiple function calls are needed to fully address the request." + imEnd

const qwenPreamble = "\n\n# Tools\n\nYou may call one or more functions to assist with the user query.\n\n" +
	"You are provided with function signatures within <tools></tools> XML tags:\n<tools>"

const qwenPostamble = "\n</tools>\n\nFor each function call, return a json object with function name and arguments within <tool_call></tool_call> XML tags:\n<tool_call>\n" +
	`{"name": <function-name>, "arguments": <args-json-object>}` + "\n</tool_call>" + imEnd

// k2Reasoning has three tiers. Parsing low effort with <think> is what the
// released checkpoints emit.
func k2Reasoning() *Reasoning {
	return &Reasoning{
		Dialects: reasoning.NewSet("think_faster",
			reasoning.Tag("think"),
			reasoning.Tag("think_fast"),
			reasoning.Tag("think_faster"),
		),
		Layout: reasoning.Compact,
		Format: map[domain.Effort]string{
			domain.EffortHigh:   "think",
			domain.EffortMedium: "think_fast",
			domain.EffortLow:    "think_faster",
		},
		Parse: map[domain.Effort]string{
			domain.EffortHigh:   "think",
			domain.EffortMedium: "think_fast",
			domain.EffortLow:    "think",
		},
		CueSuffix: "\n",
	}
}

func k2Family(name, postamble string, aliases ...string) *Family {
	return &Family{
		Name:            name,
		Aliases:         aliases,
		RoleStart:       imStart,
		RoleEnd:         imEnd,
		SystemSeparator: "\n\n",
		Catalog: Catalog{
			Style:     CatalogEmbedded,
			Preamble:  k2Preamble,
			Postamble: postamble,
		},
		ToolTurn:  ToolTurn{Role: "tool", Header: "\n"},
		EchoOpen:  toolResponseOpen,
		EchoClose: toolResponseClose,
		Reasoning: k2Reasoning(),
		Calls:     toolcall.NewTagged("<tool_call>", "</tool_call>"),
	}
}

// K2 returns the K2 family.
func K2() *Family {
	f := k2Family("k2", k2Postamble, "k2-think")
	f.Description = "K2 with three reasoning tiers and <tool_call> blocks"
	return f
}

// K2OSS returns the K2-OSS family. It differs from K2 only in the catalog
// postamble.
func K2OSS() *Family {
	f := k2Family("k2-oss", k2OSSPostamble, "k2oss")
	f.Description = "K2-OSS with three reasoning tiers and <tool_call> blocks"
	return f
}

// Olmo3 returns the Olmo-3 family. Declarations go into the functions block
// of the system message, tool results are spoken by the environment role and
// calls use the <function_calls> list dialect.
func Olmo3() *Family {
	think := reasoning.Tag("think")
	return &Family{
		Name:        "olmo-3",
		Aliases:     []string{"olmo3", "olmo-3-think"},
		Description: "Olmo-3 with <think> reasoning and <function_calls> lists",
		RoleStart:   imStart,
		RoleEnd:     imEnd,
		Persona:     "You are a helpful AI assistant.",
		Catalog: Catalog{
			Style:     CatalogDelegated,
			Preamble:  " <functions>",
			Postamble: "</functions>" + imEnd,
		},
		ToolTurn:  ToolTurn{Role: "environment", Header: "\n"},
		EchoOpen:  toolResponseOpen,
		EchoClose: toolResponseClose,
		Reasoning: &Reasoning{
			Dialects: reasoning.NewSet("think", think),
			Layout:   reasoning.Padded,
			Format: map[domain.Effort]string{
				domain.EffortHigh:   "think",
				domain.EffortMedium: "think",
				domain.EffortLow:    "think",
			},
			Parse: map[domain.Effort]string{
				domain.EffortHigh:   "think",
				domain.EffortMedium: "think",
				domain.EffortLow:    "think",
			},
			KeepLaterCloses: true,
		},
		Calls: toolcall.NewListed("<function_calls>", "</function_calls>"),
	}
}

// QwenNoThinkFC returns the Qwen function-calling family with thinking
// disabled. Tool results are wrapped in <tool_response> inside a user turn.
func QwenNoThinkFC() *Family {
	return &Family{
		Name:        "qwen-nothink-fc",
		Aliases:     []string{"qwen", "qwen-fc"},
		Description: "Qwen function calling without reasoning",
		RoleStart:   imStart,
		RoleEnd:     imEnd,
		Persona:     "You are Qwen, created by Alibaba Cloud. You are a helpful assistant.",
		Catalog: Catalog{
			Style:     CatalogEmbedded,
			Preamble:  qwenPreamble,
			Postamble: qwenPostamble,
		},
		ToolTurn: ToolTurn{
			Role:       "user",
			ItemPrefix: "\n" + toolResponseOpen + "\n",
			ItemSuffix: "\n" + toolResponseClose,
		},
		EchoOpen:  toolResponseOpen,
		EchoClose: toolResponseClose,
		Calls:     toolcall.NewTagged("<tool_call>", "</tool_call>"),
	}
}
