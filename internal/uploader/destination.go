package uploader

import (
	"context"

	"pulse/internal/constants"
	"pulse/internal/integration"
	"pulse/internal/logger"
	"pulse/pkg/models"
)

// Destination is the built-in Segment.io integration. Every payload it receives is
// appended to the upload log.
type Destination struct {
	integration.Base
	uploader *Uploader
}

// NewFactory binds the built-in integration to u. An apiHost in the integration
// settings redirects uploads.
func NewFactory(u *Uploader) integration.Factory {
	return integration.NewFactory(constants.SegmentIntegrationKey, func(settings models.ValueMap, log logger.Logger) (integration.Integration, error) {
		if host := settings.GetString("apiHost"); host != "" {
			u.SetAPIHost(host)
		}
		return &Destination{uploader: u}, nil
	})
}

func (d *Destination) Identify(ctx context.Context, p models.Payload) error {
	return d.uploader.Enqueue(ctx, p)
}

func (d *Destination) Group(ctx context.Context, p models.Payload) error {
	return d.uploader.Enqueue(ctx, p)
}

func (d *Destination) Alias(ctx context.Context, p models.Payload) error {
	return d.uploader.Enqueue(ctx, p)
}

func (d *Destination) Track(ctx context.Context, p models.Payload) error {
	return d.uploader.Enqueue(ctx, p)
}

func (d *Destination) Screen(ctx context.Context, p models.Payload) error {
	return d.uploader.Enqueue(ctx, p)
}

func (d *Destination) Flush(context.Context) error {
	d.uploader.Submit()
	return nil
}

func (d *Destination) Underlying() any {
	return d.uploader
}
