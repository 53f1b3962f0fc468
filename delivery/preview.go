package delivery

import (
	"context"
	"fmt"
	"sort"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/pulse/schedule"
	"github.com/teranos/briefing/variables"
)

// Preview is what a delivery would look like right now.
type Preview struct {
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Variables map[string]string `json:"variables"`
	Missing   []string          `json:"missing"` // placeholders with no value
	Warnings  []string          `json:"warnings"`
}

// PreviewVariables previews a stored job with overrides applied on top of
// every other variable source.
func (s *Service) PreviewVariables(ctx context.Context, id string, overrides map[string]string) (*Preview, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Preview(ctx, job, overrides)
}

// Preview renders job without refreshing content, persisting anything or
// sending mail. Query variables still run against the warehouse. Missing
// content is reported as a warning and the body renders without slides.
func (s *Service) Preview(ctx context.Context, job *schedule.Job, overrides map[string]string) (*Preview, error) {
	warnings := s.Warnings(job)

	resolved, err := s.resolver.Peek(ctx, job.Content)
	switch {
	case errors.Is(err, errors.ErrContentNotFound):
		warnings = append(warnings, fmt.Sprintf("%s %s does not exist", job.Content.Kind, job.Content.ContentID()))
		resolved = &ResolvedContent{}
	case err != nil:
		return nil, err
	}

	subject, body, vars, err := s.compose(ctx, job, resolved, overrides)
	if err != nil {
		return nil, err
	}

	if warnings == nil {
		warnings = []string{}
	}
	return &Preview{
		Subject:   subject,
		Body:      body,
		Variables: vars,
		Missing:   missing(vars, job.EmailTemplate.Subject, job.EmailTemplate.CustomContent),
		Warnings:  warnings,
	}, nil
}

func missing(vars map[string]string, texts ...string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, text := range texts {
		for _, name := range variables.Missing(variables.NormalizeLegacy(text), vars) {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}
