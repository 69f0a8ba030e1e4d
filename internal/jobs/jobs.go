// Package jobs holds the AI generation handlers, one per job type.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/questforge/internal/ai"
	"github.com/kiranshivaraju/questforge/internal/dispatch"
	"github.com/kiranshivaraju/questforge/pkg/models"
)

const systemPrompt = "You are the narrator of a collaborative tabletop adventure. " +
	"Write vivid, concise prose in the second person. Never break character."

// Usage is the token accounting reported with every result.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is the stored output of a generation job.
type Result struct {
	Kind     string `json:"kind"`
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Usage    Usage  `json:"usage"`
	QuestID  string `json:"quest_id,omitempty"`
}

type QuestPayload struct {
	Premise    string `json:"premise" validate:"required"`
	Setting    string `json:"setting"`
	Tone       string `json:"tone" validate:"omitempty,oneof=light grim whimsical heroic"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy normal hard deadly"`
}

type RoomPayload struct {
	Theme    string   `json:"theme" validate:"required"`
	RoomKind string   `json:"room_kind"`
	Exits    []string `json:"exits" validate:"max=6,dive,required"`
}

type CharacterPayload struct {
	Name     string `json:"name" validate:"required,max=80"`
	Role     string `json:"role" validate:"required"`
	Ancestry string `json:"ancestry"`
	Hook     string `json:"hook"`
}

type ChapterPayload struct {
	AdventureTitle string   `json:"adventure_title" validate:"required"`
	ChapterNumber  int      `json:"chapter_number" validate:"required,gte=1"`
	SummarySoFar   string   `json:"summary_so_far"`
	Beats          []string `json:"beats" validate:"dive,required"`
}

type PhotoPayload struct {
	PhotoURL string `json:"photo_url" validate:"required,url"`
	Caption  string `json:"caption"`
}

// Handlers builds the handlers over gen, keyed by job type.
func Handlers(gen *ai.Generator) map[string]dispatch.Handler {
	h := &handlers{gen: gen}
	return map[string]dispatch.Handler{
		models.JobTypeGenerateQuest:     dispatch.Typed(h.generateQuest),
		models.JobTypeGenerateRoom:      dispatch.Typed(h.generateRoom),
		models.JobTypeGenerateCharacter: dispatch.Typed(h.generateCharacter),
		models.JobTypeGenerateChapter:   dispatch.Typed(h.generateChapter),
		models.JobTypeDescribePhoto:     dispatch.Typed(h.describePhoto),
	}
}

// Register adds every job handler to r, backed by provider with the given
// inference timeout.
func Register(r *dispatch.Registry, provider models.AIProvider, timeout time.Duration) {
	for jobType, h := range Handlers(ai.NewGenerator(provider, timeout)) {
		r.Register(jobType, h)
	}
}

type handlers struct {
	gen *ai.Generator
}

func (h *handlers) run(ctx context.Context, in dispatch.Input, maxTokens int, prompt string) (*Result, error) {
	gen, err := h.gen.Generate(ctx, models.GenerationRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: 0.8,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", in.JobType, err)
	}
	return &Result{
		Kind:     in.JobType,
		Text:     gen.Text,
		Provider: gen.Provider,
		Model:    gen.Model,
		Usage:    Usage{InputTokens: gen.InputTokens, OutputTokens: gen.OutputTokens},
		QuestID:  in.Correlation.QuestID,
	}, nil
}

func (h *handlers) generateQuest(ctx context.Context, in dispatch.Input, p QuestPayload) (any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Design a quest hook and three objectives for this premise: %s\n", p.Premise)
	optional(&b, "Setting", p.Setting)
	optional(&b, "Tone", p.Tone)
	optional(&b, "Difficulty", p.Difficulty)
	return h.run(ctx, in, 900, b.String())
}

func (h *handlers) generateRoom(ctx context.Context, in dispatch.Input, p RoomPayload) (any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Describe a single room themed around %s.\n", p.Theme)
	optional(&b, "Room kind", p.RoomKind)
	if len(p.Exits) > 0 {
		fmt.Fprintf(&b, "Exits: %s\n", strings.Join(p.Exits, ", "))
	}
	b.WriteString("Mention what the party sees, hears and smells, and one thing worth investigating.")
	return h.run(ctx, in, 600, b.String())
}

func (h *handlers) generateCharacter(ctx context.Context, in dispatch.Input, p CharacterPayload) (any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Introduce the character %s, a %s.\n", p.Name, p.Role)
	optional(&b, "Ancestry", p.Ancestry)
	optional(&b, "Story hook", p.Hook)
	b.WriteString("Give appearance, a mannerism, a secret and a line of dialogue.")
	return h.run(ctx, in, 600, b.String())
}

func (h *handlers) generateChapter(ctx context.Context, in dispatch.Input, p ChapterPayload) (any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write chapter %d of the adventure %q.\n", p.ChapterNumber, p.AdventureTitle)
	optional(&b, "Story so far", p.SummarySoFar)
	for i, beat := range p.Beats {
		fmt.Fprintf(&b, "Beat %d: %s\n", i+1, beat)
	}
	return h.run(ctx, in, 1800, b.String())
}

func (h *handlers) describePhoto(ctx context.Context, in dispatch.Input, p PhotoPayload) (any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "A player shared the image at %s.\n", p.PhotoURL)
	optional(&b, "Their caption", p.Caption)
	b.WriteString("Describe it as a location the party has just discovered.")
	return h.run(ctx, in, 500, b.String())
}

func optional(b *strings.Builder, label, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}
