// Package token implements C1, the token counter: a deterministic, pure
// function of (model, input) used throughout the context orchestrator to
// budget what goes into the LLM's input.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Message is the minimal message shape the counter needs: a role and a
// content string. Higher-level packages (e.g. pkg/session) convert their
// own message types into this one at the call site.
type Message struct {
	Role    string
	Content string
}

// UnknownModelError is returned by Counter when a model has no registered
// tokenizer and no default encoding has been configured.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("token: no tokenizer registered for model %q and no default configured", e.Model)
}

// tokensPerMessage is the per-message role/delimiter overhead charged on top
// of the encoded role+content, following OpenAI's published chat token
// counting recipe (the same constant the teacher's pkg/utils/tokens.go uses).
const tokensPerMessage = 3

// tokensPerReply is the priming overhead for <|start|>assistant<|message|>.
const tokensPerReply = 3

// defaultEncodingByPrefix maps model name prefixes to tiktoken encoding names. Unknown
// models fall through to the configured default, if any.
var defaultEncodingByPrefix = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5":       "cl100k_base",
	"claude":        "cl100k_base", // approximated with the OpenAI BPE family
	"gemini":        "cl100k_base",
	"text-embedding": "cl100k_base",
}

// Counter counts tokens for a single named model. It is safe for concurrent
// use and caches its tiktoken encoding.
type Counter struct {
	model    string
	encoding *tiktoken.Tiktoken
}

// registry holds one Counter per distinct model seen, plus a single optional
// default used when a model has never been registered.
type registry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	byHash   map[string]int // content-hash cache, keyed by model+hash
	fallback string         // default model name consulted when lookup misses
}

// Registry is the process-wide token counter registry. Implementations MAY
// cache by content hash (spec §4.1); Registry provides that cache.
type Registry struct {
	r *registry
}

// NewRegistry creates an empty registry. If fallbackModel is non-empty, any
// model name that has no dedicated tokenizer uses the fallback's encoding
// instead of failing with UnknownModelError.
func NewRegistry(fallbackModel string) *Registry {
	return &Registry{r: &registry{
		counters: make(map[string]*Counter),
		byHash:   make(map[string]int),
		fallback: fallbackModel,
	}}
}

func encodingNameFor(model string) (string, bool) {
	for prefix, enc := range defaultEncodingByPrefix {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return enc, true
		}
	}
	return "", false
}

func (r *registry) counterFor(model string) (*Counter, error) {
	r.mu.RLock()
	if c, ok := r.counters[model]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	r.mu.RUnlock()

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Not a model tiktoken recognizes directly; try a known prefix, then
		// the configured fallback model, before giving up.
		if encName, ok := encodingNameFor(model); ok {
			enc, err = tiktoken.GetEncoding(encName)
		} else if r.fallback != "" {
			enc, err = tiktoken.EncodingForModel(r.fallback)
			if err != nil {
				if encName, ok := encodingNameFor(r.fallback); ok {
					enc, err = tiktoken.GetEncoding(encName)
				}
			}
		} else {
			return nil, &UnknownModelError{Model: model}
		}
		if err != nil {
			return nil, &UnknownModelError{Model: model}
		}
	}

	c := &Counter{model: model, encoding: enc}
	r.mu.Lock()
	r.counters[model] = c
	r.mu.Unlock()
	return c, nil
}

func hashKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:16])
}

// CountText implements count_text(model, text) -> int.
func (r *Registry) CountText(model, text string) (int, error) {
	key := hashKey(model, text)
	r.r.mu.RLock()
	if n, ok := r.r.byHash[key]; ok {
		r.r.mu.RUnlock()
		return n, nil
	}
	r.r.mu.RUnlock()

	c, err := r.r.counterFor(model)
	if err != nil {
		return 0, err
	}
	n := len(c.encoding.Encode(text, nil, nil))

	r.r.mu.Lock()
	r.r.byHash[key] = n
	r.r.mu.Unlock()
	return n, nil
}

// CountMessages implements count_messages(model, messages) -> int: the sum
// of per-message tokens plus per-role overhead, plus the reply-priming
// overhead, matching the OpenAI chat format recipe.
func (r *Registry) CountMessages(model string, messages []Message) (int, error) {
	c, err := r.r.counterFor(model)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, m := range messages {
		total += tokensPerMessage
		total += len(c.encoding.Encode(m.Role, nil, nil))
		total += len(c.encoding.Encode(m.Content, nil, nil))
	}
	total += tokensPerReply
	return total, nil
}

// FitWithinBudget returns the suffix of messages (most-recent-first
// selection, returned in original order) whose combined token count fits
// within maxTokens. Used by session.Controller.AggregateContext to fit each
// session's share of the budget.
func (r *Registry) FitWithinBudget(model string, messages []Message, maxTokens int) ([]Message, error) {
	if len(messages) == 0 {
		return messages, nil
	}

	c, err := r.r.counterFor(model)
	if err != nil {
		return nil, err
	}

	fitted := make([]Message, 0, len(messages))
	current := tokensPerReply
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		n := tokensPerMessage + len(c.encoding.Encode(m.Role, nil, nil)) + len(c.encoding.Encode(m.Content, nil, nil))
		if current+n > maxTokens {
			break
		}
		fitted = append([]Message{m}, fitted...)
		current += n
	}
	return fitted, nil
}
