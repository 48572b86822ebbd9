package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/godilite/aiticket/internal/api/models"
	"github.com/godilite/aiticket/internal/session"
	"go.uber.org/zap"
)

const (
	titlePrefix = "Ticket: "
	titleRunes  = 30
	ellipsis    = "..."
)

var (
	ErrEmptyInput     = errors.New("please describe your issue before analyzing")
	ErrServiceFailure = errors.New("analysis failed")
)

// Pending is a classification result awaiting confirmation.
type Pending struct {
	Category          string
	Priority          models.Priority
	ExtractedEntities models.Entities
	Title             string
	Description       string
}

type Classifier interface {
	Predict(ctx context.Context, token, text string) (models.Prediction, error)
}

type Authenticator interface {
	Call(ctx context.Context, fn func(ctx context.Context, token string) error) (uint64, error)
	Epoch() uint64
}

// Pipeline sends issue text to the classifier and holds at most one
// pending result. The most recently completed analysis wins.
type Pipeline struct {
	classifier Classifier
	auth       Authenticator
	logger     *zap.Logger

	mu      sync.Mutex
	pending *Pending
}

func NewPipeline(classifier Classifier, auth Authenticator, logger *zap.Logger) *Pipeline {
	if classifier == nil {
		panic("classifier must not be nil")
	}
	if auth == nil {
		panic("authenticator must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		classifier: classifier,
		auth:       auth,
		logger:     logger.Named("analysis"),
	}
}

// Analyze classifies text. Blank input is rejected without a request.
func (p *Pipeline) Analyze(ctx context.Context, text string) (Pending, error) {
	if strings.TrimSpace(text) == "" {
		return Pending{}, ErrEmptyInput
	}

	var prediction models.Prediction
	epoch, err := p.auth.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		prediction, err = p.classifier.Predict(ctx, token, text)
		return err
	})
	if err != nil {
		if errors.Is(err, session.ErrSessionInvalidated) || errors.Is(err, session.ErrNotAuthenticated) {
			return Pending{}, err
		}
		p.logger.Warn("classification failed", zap.Error(err))
		return Pending{}, fmt.Errorf("%w: %v", ErrServiceFailure, err)
	}

	result := Pending{
		Category:          prediction.Category,
		Priority:          prediction.Priority,
		ExtractedEntities: prediction.ExtractedEntities.Clone(),
		Title:             DeriveTitle(text),
		Description:       text,
	}

	p.mu.Lock()
	if p.auth.Epoch() == epoch {
		stored := result
		stored.ExtractedEntities = result.ExtractedEntities.Clone()
		p.pending = &stored
	}
	p.mu.Unlock()

	p.logger.Debug("analysis complete",
		zap.String("category", result.Category),
		zap.String("priority", string(result.Priority)),
		zap.Int("entities", len(result.ExtractedEntities)))

	return result, nil
}

// Pending returns the current pending analysis, if any.
func (p *Pipeline) Pending() (Pending, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return Pending{}, false
	}
	out := *p.pending
	out.ExtractedEntities = p.pending.ExtractedEntities.Clone()
	return out, true
}

// Discard drops the pending analysis.
func (p *Pipeline) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
}

// DeriveTitle builds the ticket title from the first runes of the input.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) > titleRunes {
		runes = runes[:titleRunes]
	}
	return titlePrefix + string(runes) + ellipsis
}
