// Package backend is the boundary to the native backend that performs
// translation, speech synthesis and cache maintenance. Services only see
// the Invoker interface; the transport behind it is replaceable.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// Command names a backend operation.
type Command string

const (
	CommandTranslateText       Command = "translate_text"
	CommandPlayTTS             Command = "play_tts"
	CommandConnectLLM          Command = "connect_llm"
	CommandConnectOllama       Command = "connect_ollama"
	CommandGetTTSCacheInfo     Command = "get_tts_cache_info"
	CommandClearTTSCache       Command = "clear_tts_cache"
	CommandGetEdgeTTSVoices    Command = "get_edge_tts_voices"
	CommandSaveTranslationFile Command = "save_translation_file"
)

// Commands lists every known command.
func Commands() []Command {
	return []Command{
		CommandTranslateText,
		CommandPlayTTS,
		CommandConnectLLM,
		CommandConnectOllama,
		CommandGetTTSCacheInfo,
		CommandClearTTSCache,
		CommandGetEdgeTTSVoices,
		CommandSaveTranslationFile,
	}
}

var (
	// ErrEmptyCommand is returned when Invoke is called without a command.
	ErrEmptyCommand = errors.New("backend command must not be empty")
	// ErrInvalidBaseURL is returned by NewHTTPInvoker for unusable URLs.
	ErrInvalidBaseURL = errors.New("invalid backend base URL")
)

// Invoker performs one backend command. args is encoded as the command's
// argument object and may be nil; the reply is decoded into result unless
// result is nil.
type Invoker interface {
	Invoke(ctx context.Context, command Command, args any, result any) error
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, command Command, args any, result any) error

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, command Command, args any, result any) error {
	return f(ctx, command, args, result)
}

// RemoteError is a failure reported by the backend itself, as opposed to a
// transport failure. Message is the backend's own description.
type RemoteError struct {
	Command    Command
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend command %s failed (status %d): %s", e.Command, e.StatusCode, e.Message)
}
