// Package embedprovider parses and validates the embedding_model config
// string from config.hx.json ("openai:<model>", "gemini:<model>[:<task>]",
// "local") into a typed descriptor. The actual HTTP calls to an embedding
// provider stay out of scope: this package resolves configuration, nothing
// more.
package embedprovider

import (
	"strings"

	"github.com/helixdb/helixdb/internal/herrors"
)

// Kind names which embedding provider a project is configured to use.
type Kind string

const (
	KindOpenAI Kind = "openai"
	KindGemini Kind = "gemini"
	KindLocal  Kind = "local"
)

// Descriptor is the resolved shape of an embedding_model config string.
type Descriptor struct {
	Kind   Kind
	Model  string
	Task   string // Gemini-only, e.g. "retrieval_document"; empty otherwise.
	EnvVar string // required environment variable name, empty for KindLocal
}

// Parse validates and resolves an embedding_model string. An empty string
// is not valid here; callers should skip calling Parse when a project has
// no embedding model configured.
func Parse(spec string) (Descriptor, error) {
	if spec == "" {
		return Descriptor{}, herrors.New(herrors.KindInvalid, "embedding_model must not be empty")
	}
	if spec == string(KindLocal) {
		return Descriptor{Kind: KindLocal}, nil
	}
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return Descriptor{}, herrors.New(herrors.KindInvalid, "embedding_model must be \"openai:<model>\", \"gemini:<model>[:<task>]\", or \"local\": "+spec)
	}
	switch Kind(parts[0]) {
	case KindOpenAI:
		if len(parts) != 2 || parts[1] == "" {
			return Descriptor{}, herrors.New(herrors.KindInvalid, "openai embedding_model must be \"openai:<model>\": "+spec)
		}
		return Descriptor{Kind: KindOpenAI, Model: parts[1], EnvVar: "OPENAI_API_KEY"}, nil
	case KindGemini:
		if parts[1] == "" {
			return Descriptor{}, herrors.New(herrors.KindInvalid, "gemini embedding_model must be \"gemini:<model>[:<task>]\": "+spec)
		}
		d := Descriptor{Kind: KindGemini, Model: parts[1], EnvVar: "GEMINI_API_KEY"}
		if len(parts) == 3 {
			d.Task = parts[2]
		}
		return d, nil
	default:
		return Descriptor{}, herrors.New(herrors.KindInvalid, "unknown embedding provider: "+parts[0])
	}
}

// RequiresEnv reports whether d needs an API key environment variable set.
// It does not check the process environment.
func (d Descriptor) RequiresEnv() bool { return d.EnvVar != "" }
