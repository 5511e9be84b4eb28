// Package summary turns a finished analysis into a short natural
// language review using an OpenAI-compatible chat model.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"replaylens/internal/config"
	"replaylens/internal/domain"
)

// ErrNotConfigured means no API key was provided.
var ErrNotConfigured = errors.New("summary generation not configured")

const systemPrompt = "You are a chess coach reviewing a finished game. " +
	"Write a short, concrete review in plain language: name the turning points " +
	"by move number, say which side played more accurately, and give each player " +
	"one piece of advice. Do not invent moves that are not in the data."

// chatClient is the slice of the OpenAI client the generator needs.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Generator struct {
	client chatClient
	model  string
	log    *slog.Logger
}

// NewGenerator builds a Generator from configuration. A missing API
// key yields a generator that always reports ErrNotConfigured.
func NewGenerator(cfg *config.Config, log *slog.Logger) *Generator {
	g := &Generator{model: cfg.OpenAI.Model, log: log}
	if cfg.OpenAI.APIKey == "" {
		return g
	}
	if cfg.OpenAI.BaseURL != "" {
		cc := openai.DefaultConfig(cfg.OpenAI.APIKey)
		cc.BaseURL = cfg.OpenAI.BaseURL
		g.client = openai.NewClientWithConfig(cc)
	} else {
		g.client = openai.NewClient(cfg.OpenAI.APIKey)
	}
	return g
}

// Generate produces the review text for a report.
func (g *Generator) Generate(ctx context.Context, rep *domain.Report) (string, error) {
	if g.client == nil {
		return "", ErrNotConfigured
	}
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(rep)},
		},
	}
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if g.log != nil {
			g.log.Error("chat completion failed", "game", rep.Game.ID, "err", err)
		}
		return "", fmt.Errorf("generate summary: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate summary: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// BuildPrompt renders the analysis as a compact text block the model
// can reason over.
func BuildPrompt(rep *domain.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Game %s: %s (%d) vs %s (%d), result %s.\n",
		rep.Game.ID, rep.Game.White.Name, rep.Game.White.Rating,
		rep.Game.Black.Name, rep.Game.Black.Rating, rep.Game.Result)
	if rep.Game.Opening != "" {
		fmt.Fprintf(&b, "Opening: %s.\n", rep.Game.Opening)
	}
	fmt.Fprintf(&b, "White accuracy %.1f (%s), black accuracy %.1f (%s).\n",
		rep.Stats.White.Accuracy, rep.Stats.White.Label,
		rep.Stats.Black.Accuracy, rep.Stats.Black.Label)
	fmt.Fprintf(&b, "White mistakes %d blunders %d; black mistakes %d blunders %d.\n",
		rep.Stats.White.Mistakes, rep.Stats.White.Blunders,
		rep.Stats.Black.Mistakes, rep.Stats.Black.Blunders)
	b.WriteString("Key moments:\n")
	moments := 0
	for _, ev := range rep.Evaluations {
		if ev.Category != domain.CategoryMistake && ev.Category != domain.CategoryBlunder {
			continue
		}
		num := (ev.Ply + 1) / 2
		fmt.Fprintf(&b, "- move %d (%s) %s: %s", num, ev.Side, ev.SAN, ev.Category)
		if ev.DeltaCP != nil {
			fmt.Fprintf(&b, ", swing %d centipawns", *ev.DeltaCP)
		}
		if ev.DeltaMate != nil {
			fmt.Fprintf(&b, ", mate swing %d", *ev.DeltaMate)
		}
		b.WriteString("\n")
		moments++
		if moments == 12 {
			break
		}
	}
	if moments == 0 {
		b.WriteString("- none, a clean game on both sides\n")
	}
	return b.String()
}
