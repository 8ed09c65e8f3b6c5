package botengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	domainBot "github.com/AzielCF/az-flow/domains/bot"
	"github.com/sirupsen/logrus"
)

// AIProvider es la interfaz que debe implementar cualquier proveedor de IA (Gemini, OpenAI, etc.)
type AIProvider interface {
	// GenerateReply genera una respuesta de texto para el mensaje entrante
	GenerateReply(ctx context.Context, req domainBot.ReplyRequest) (string, error)
}

type Options struct {
	Provider           string
	GlobalSystemPrompt string
	Timeout            time.Duration
}

// Engine selecciona el proveedor configurado y delega la generación.
// Implementa bot.IResponder para que el procesador no conozca proveedores.
type Engine struct {
	provider AIProvider
	name     string
	prompt   string
	timeout  time.Duration
}

func New(opts Options, providers map[string]AIProvider) (*Engine, error) {
	name := strings.ToLower(strings.TrimSpace(opts.Provider))
	provider, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown ai provider %q", opts.Provider)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Engine{
		provider: provider,
		name:     name,
		prompt:   opts.GlobalSystemPrompt,
		timeout:  timeout,
	}, nil
}

func (e *Engine) Reply(ctx context.Context, req domainBot.ReplyRequest) (string, error) {
	if req.SystemPrompt == "" {
		req.SystemPrompt = e.prompt
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	text, err := e.provider.GenerateReply(ctx, req)
	if err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"provider": e.name,
		"chat_jid": req.ChatJID,
		"elapsed":  time.Since(start).Round(time.Millisecond).String(),
	}).Debug("[BOTENGINE] Reply generated")

	return strings.TrimSpace(text), nil
}
