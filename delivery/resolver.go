package delivery

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/briefing/content"
	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/logger"
	"github.com/teranos/briefing/pulse/schedule"
	"github.com/teranos/briefing/refresh"
)

// ResolvedContent is the presentation and slides an execution renders.
type ResolvedContent struct {
	Presentation *content.Presentation
	Slides       []*content.Slide
	Refresh      *refresh.Report // nil for reports, which are never refreshed
}

// ContentResolver loads the content a job is bound to.
type ContentResolver struct {
	store  *content.Store
	engine *refresh.Engine
	logger *zap.SugaredLogger
}

// NewContentResolver creates a resolver over store and engine.
func NewContentResolver(store *content.Store, engine *refresh.Engine) *ContentResolver {
	return &ContentResolver{
		store:  store,
		engine: engine,
		logger: logger.ComponentLogger("content"),
	}
}

// Resolve loads the bound content. A report comes back exactly as authored.
// A template always has its data-bound elements refreshed and the refreshed
// slides saved before it is returned. A missing presentation or template
// fails with errors.ErrContentNotFound.
func (r *ContentResolver) Resolve(ctx context.Context, b schedule.ContentBinding) (*ResolvedContent, error) {
	if err := b.Validate(); err != nil {
		return nil, errors.Mark(err, errors.ErrValidation)
	}

	if b.Kind == schedule.ContentReport {
		p, slides, err := r.load(ctx, b.PresentationID, false)
		if err != nil {
			return nil, err
		}
		return &ResolvedContent{Presentation: p, Slides: slides}, nil
	}

	p, slides, report, err := r.refresh(ctx, b.TemplateID, true)
	if err != nil {
		return nil, err
	}
	return &ResolvedContent{Presentation: p, Slides: slides, Refresh: report}, nil
}

// Peek loads the bound content without refreshing it. Previews use it.
func (r *ContentResolver) Peek(ctx context.Context, b schedule.ContentBinding) (*ResolvedContent, error) {
	p, slides, err := r.load(ctx, b.ContentID(), b.Kind == schedule.ContentTemplate)
	if err != nil {
		return nil, err
	}
	return &ResolvedContent{Presentation: p, Slides: slides}, nil
}

// Refresh refreshes a presentation's data-bound elements and saves them.
// It backs both the interactive refresh action and the pre-send step.
func (r *ContentResolver) Refresh(ctx context.Context, presentationID string) (*refresh.Report, error) {
	_, _, report, err := r.refresh(ctx, presentationID, false)
	return report, err
}

func (r *ContentResolver) refresh(ctx context.Context, id string, template bool) (*content.Presentation, []*content.Slide, *refresh.Report, error) {
	p, slides, err := r.load(ctx, id, template)
	if err != nil {
		return nil, nil, nil, err
	}

	report := r.engine.RefreshSlides(ctx, slides)
	if report.RefreshedCount > 0 {
		if err := r.store.SaveSlides(ctx, slides); err != nil {
			// the refreshed rows are still used for this render
			r.logger.Warnw("Failed to save refreshed slides",
				logger.FieldPresentationID, id,
				logger.FieldError, err)
		}
	}
	return p, slides, &report, nil
}

func (r *ContentResolver) load(ctx context.Context, id string, template bool) (*content.Presentation, []*content.Slide, error) {
	var p *content.Presentation
	var err error
	if template {
		p, err = r.store.GetTemplate(ctx, id)
	} else {
		p, err = r.store.GetPresentation(ctx, id)
	}
	if err != nil {
		return nil, nil, err
	}
	slides, err := r.store.GetSlides(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return p, slides, nil
}
