// Package supabase constructs the Supabase client the Event Bus's external
// publish hook is layered on top of. The Supabase-backed Blob Store builds
// its own storage client and does not use this package.
package supabase

import (
	"github.com/supabase-community/supabase-go"

	"viralclip-backend/internal/config"
)

type Client struct {
	Supabase *supabase.Client
	Config   *config.Config
}

func NewClient(cfg *config.Config) (*Client, error) {
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		Supabase: client,
		Config:   cfg,
	}, nil
}
