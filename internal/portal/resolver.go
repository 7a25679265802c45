package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"propdesk/internal/core/domain"
)

// ScheduleResolver fetches the projection behind a schedule link.
type ScheduleResolver interface {
	ResolveSchedule(ctx context.Context, token string) (*domain.ScheduleView, error)
}

// InvoiceResolver fetches the projection behind an invoice link.
type InvoiceResolver interface {
	ResolveInvoice(ctx context.Context, token string) (*domain.InvoiceView, error)
}

// LinkResolver resolves both kinds of link.
type LinkResolver interface {
	ScheduleResolver
	InvoiceResolver
}

// Resolver turns link lookups into the two outcomes a page cares about:
// the link is dead (domain.ErrTokenInvalid) or the lookup may be retried
// (domain.ErrTransient). It never caches.
type Resolver struct {
	api LinkResolver
}

// NewResolver creates a resolver over api.
func NewResolver(api LinkResolver) *Resolver {
	return &Resolver{api: api}
}

// ResolveSchedule resolves a schedule link.
func (r *Resolver) ResolveSchedule(ctx context.Context, token string) (*domain.ScheduleView, error) {
	return resolveSchedule(ctx, r.api, token)
}

// ResolveInvoice resolves an invoice link.
func (r *Resolver) ResolveInvoice(ctx context.Context, token string) (*domain.InvoiceView, error) {
	return resolveInvoice(ctx, r.api, token)
}

func resolveSchedule(ctx context.Context, api ScheduleResolver, token string) (*domain.ScheduleView, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.ErrTokenInvalid
	}
	view, err := api.ResolveSchedule(ctx, token)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return view, nil
}

func resolveInvoice(ctx context.Context, api InvoiceResolver, token string) (*domain.InvoiceView, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.ErrTokenInvalid
	}
	view, err := api.ResolveInvoice(ctx, token)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return view, nil
}

// classify folds every lookup failure into the resolver taxonomy. A
// cancelled context is passed through so teardown is not mistaken for a
// fault.
func classify(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrTransient):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
}
