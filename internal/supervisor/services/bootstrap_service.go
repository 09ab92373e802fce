// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package services

import (
	"context"
	"errors"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/librarium/internal/collab"
	"github.com/tomtom215/librarium/internal/content"
	"github.com/tomtom215/librarium/internal/logging"
)

// BootstrapService trains missing model artifacts at startup and loads
// whatever exists into the engines. It runs once; suture removes it
// afterwards via ErrDoNotRestart.
type BootstrapService struct {
	trainer    *content.Trainer
	contentEng *content.Engine
	collabEng  *collab.Engine
}

// NewBootstrapService wires the startup training pass.
func NewBootstrapService(trainer *content.Trainer, contentEng *content.Engine, collabEng *collab.Engine) *BootstrapService {
	return &BootstrapService{
		trainer:    trainer,
		contentEng: contentEng,
		collabEng:  collabEng,
	}
}

// Serve implements suture.Service.
func (s *BootstrapService) Serve(ctx context.Context) error {
	if s.trainer.ShouldRetrain() {
		logging.Info().Msg("Model artifacts missing, training at startup")

		if _, err := s.trainer.Train(ctx); err != nil {
			if errors.Is(err, content.ErrNoEligibleBooks) {
				logging.Info().Msg("Catalog empty, skipping content training")
			} else {
				logging.Error().Err(err).Msg("Startup content training failed")
			}
		}
		if _, err := s.collabEng.Train(ctx); err != nil {
			if errors.Is(err, collab.ErrNotTrained) {
				logging.Info().Msg("No interactions yet, skipping collaborative training")
			} else {
				logging.Error().Err(err).Msg("Startup collaborative training failed")
			}
		}
	}

	if err := s.contentEng.Reload(); err != nil {
		logging.Warn().Err(err).Msg("Content engine has no loadable artifacts yet")
	}
	if err := s.collabEng.Reload(); err != nil {
		logging.Debug().Err(err).Msg("Collaborative engine has no loadable model yet")
	}

	return suture.ErrDoNotRestart
}

// String identifies the service in supervisor logs.
func (s *BootstrapService) String() string {
	return "bootstrap"
}
