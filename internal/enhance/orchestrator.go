// Package enhance drives the external generation service over a batch of
// source references: fetch, register, generate with retry and model
// fallback, and collect every returned image. Items are processed one at a
// time; any unrecoverable per-item failure aborts the whole batch rather
// than returning a partial result.
package enhance

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/providers/genai"
)

// GenerationClient is the slice of the Gemini client the orchestrator needs.
type GenerationClient interface {
	Model() string
	FallbackModel() string
	UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (*genai.UploadedFile, error)
	GenerateEdit(ctx context.Context, req genai.EditRequest) (*genai.EditResult, error)
}

// Options tunes orchestrator behavior. The zero value is production-ready.
type Options struct {
	HTTPClient *http.Client
	RetryDelay time.Duration
	Logger     *zerolog.Logger
}

// Orchestrator generates transformed variants for a batch of references.
type Orchestrator struct {
	client     GenerationClient
	fetcher    *Fetcher
	retryDelay time.Duration
	logger     zerolog.Logger
}

func NewOrchestrator(client GenerationClient, opts Options) *Orchestrator {
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 300 * time.Millisecond
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Orchestrator{
		client:     client,
		fetcher:    NewFetcher(opts.HTTPClient),
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Generate processes each reference in order and returns every produced
// output. A single input may yield several outputs; they are numbered so the
// archive keeps them apart. The batch fails as a whole on the first
// unrecoverable item failure.
func (o *Orchestrator) Generate(ctx context.Context, refs []string, instruction string) ([]domain.GeneratedOutput, error) {
	var outputs []domain.GeneratedOutput
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, err := o.generateOne(ctx, i, ref, instruction)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, items...)
	}
	return outputs, nil
}

func (o *Orchestrator) generateOne(ctx context.Context, index int, ref, instruction string) ([]domain.GeneratedOutput, error) {
	src, err := o.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	// Register the bytes up front; file-mode strategies need the handle.
	// When the upload itself fails the inline strategies still stand a
	// chance, so the failure only narrows the strategy list.
	uploaded, err := o.client.UploadFile(ctx, src.Data, src.MIME, fmt.Sprintf("%s-%02d", src.Name, index+1))
	if err != nil {
		o.logger.Warn().Err(err).Str("ref", ref).Msg("enhance: upload failed, file strategies skipped")
		uploaded = nil
	}

	var lastErr error
	for _, strategy := range o.strategies() {
		if strategy.Mode == ModeFile && uploaded == nil {
			continue
		}
		req := genai.EditRequest{Model: strategy.Model, Instruction: instruction}
		if strategy.Mode == ModeInline {
			req.Inline = &genai.InlineImage{MIME: src.MIME, Data: src.Data}
		} else {
			req.File = uploaded
		}

		result, err := withRetry(ctx, o.retryDelay, func() (*genai.EditResult, error) {
			return o.client.GenerateEdit(ctx, req)
		})
		if err != nil {
			lastErr = err
			o.logger.Warn().Err(err).
				Str("model", strategy.Model).
				Str("mode", string(strategy.Mode)).
				Msg("enhance: strategy exhausted")
			continue
		}
		// A success with zero image parts means the model declined the
		// edit; retrying other strategies would only repeat billed calls.
		if len(result.Images) == 0 {
			lastErr = fmt.Errorf("no image returned (%s)", firstNonEmptyText(result.Text, "no diagnostic text"))
			break
		}

		return o.collect(index, src, result), nil
	}

	return nil, fmt.Errorf("%w: item %d (%s): %v", domain.ErrGeneration, index+1, src.Name, lastErr)
}

func (o *Orchestrator) strategies() []Strategy {
	return strategiesFor(o.client.Model(), o.client.FallbackModel())
}

func (o *Orchestrator) collect(index int, src *Source, result *genai.EditResult) []domain.GeneratedOutput {
	outputs := make([]domain.GeneratedOutput, 0, len(result.Images))
	for j, img := range result.Images {
		name := fmt.Sprintf("%02d_%s", index+1, src.Name)
		if len(result.Images) > 1 {
			name = fmt.Sprintf("%s_%d", name, j+1)
		}
		outputs = append(outputs, domain.GeneratedOutput{
			Name: name + extensionFor(img.MIME),
			MIME: img.MIME,
			Data: img.Data,
		})
	}
	return outputs
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

func firstNonEmptyText(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
