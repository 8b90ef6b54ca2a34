// Package deployer packages a composition as a deployable conductor action
// and pushes it, together with its captured artifacts, to the platform.
package deployer

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/recinq/composer/internal/compiler"
	"github.com/recinq/composer/internal/composition"
)

// ActionClient is the platform surface the deployer needs.
type ActionClient interface {
	UpdateAction(ctx context.Context, name string, action map[string]any) error
	DeleteAction(ctx context.Context, name string) error
}

const defaultConductorImage = "recinq/composer-conductor"

type Deployer struct {
	client ActionClient
	log    zerolog.Logger
	image  string
	limit  int
}

type Option func(*Deployer)

func WithLogger(log zerolog.Logger) Option {
	return func(d *Deployer) { d.log = log }
}

// WithConductorImage overrides the container image of the deployed conductor.
func WithConductorImage(image string) Option {
	return func(d *Deployer) { d.image = image }
}

// WithConcurrency bounds concurrent artifact updates.
func WithConcurrency(n int) Option {
	return func(d *Deployer) {
		if n > 0 {
			d.limit = n
		}
	}
}

func New(client ActionClient, opts ...Option) *Deployer {
	d := &Deployer{
		client: client,
		log:    zerolog.Nop(),
		image:  defaultConductorImage,
		limit:  4,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Package builds the deployable action body: the compiled FSM as a default
// parameter, the source composition as a recoverable annotation, and the
// conductor runtime as the exec.
func (d *Deployer) Package(c *composition.Composition) (map[string]any, []compiler.State, error) {
	fsm, err := compiler.Compile(c)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile composition: %w", err)
	}
	body := map[string]any{
		"exec": map[string]any{"kind": "blackbox", "image": d.image},
		"parameters": []map[string]any{
			{"key": "$composition", "value": fsm},
		},
		"annotations": []map[string]any{
			{"key": "conductor", "value": c},
		},
	}
	return body, fsm, nil
}

// Deploy pushes the composition and every captured artifact, replacing
// existing actions of the same names (delete then update, per artifact).
// It returns the number of successful updates, composition included.
func (d *Deployer) Deploy(ctx context.Context, c *composition.Composition) (int, error) {
	name := c.DeployName()
	if name == "" {
		return 0, fmt.Errorf("composition has no deployable name")
	}
	body, _, err := d.Package(c)
	if err != nil {
		return 0, err
	}

	var mu sync.Mutex
	updates := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limit)
	for _, artifact := range c.Artifacts() {
		g.Go(func() error {
			if err := d.replace(gctx, artifact.Name, artifact.Action); err != nil {
				return err
			}
			mu.Lock()
			updates++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return updates, fmt.Errorf("failed to deploy artifacts: %w", err)
	}

	if err := d.replace(ctx, name, body); err != nil {
		return updates, fmt.Errorf("failed to deploy composition: %w", err)
	}
	updates++
	d.log.Info().Str("name", name).Int("updates", updates).Msg("deployed composition")
	return updates, nil
}

func (d *Deployer) replace(ctx context.Context, name string, body map[string]any) error {
	if err := d.client.DeleteAction(ctx, name); err != nil {
		return err
	}
	return d.client.UpdateAction(ctx, name, body)
}
