package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"socialpub/internal/engine"
)

// batchFile is the on-disk shape of a publish batch.
type batchFile struct {
	Posts []batchPost `yaml:"posts"`
}

type batchPost struct {
	Mode     string      `yaml:"mode"`
	Text     string      `yaml:"text"`
	Entries  []string    `yaml:"entries"`
	Tags     []string    `yaml:"tags"`
	QuoteURL string      `yaml:"quote_url"`
	Media    *batchMedia `yaml:"media"`
}

type batchMedia struct {
	Path string `yaml:"path"`
	Kind string `yaml:"kind"`
}

// loadBatch reads a batch file and converts each post into a validated
// PublishRequest. Validation failures abort the whole batch up front so a
// half-published batch never starts.
func loadBatch(path string) ([]*engine.PublishRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	var file batchFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}
	if len(file.Posts) == 0 {
		return nil, fmt.Errorf("batch file %s has no posts", path)
	}

	reqs := make([]*engine.PublishRequest, 0, len(file.Posts))
	for i, post := range file.Posts {
		req, err := post.toRequest()
		if err != nil {
			return nil, fmt.Errorf("post %d: %w", i, err)
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("post %d: %w", i, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (p batchPost) toRequest() (*engine.PublishRequest, error) {
	mode := engine.Mode(p.Mode)

	var entries []engine.TextEntry
	switch {
	case mode == engine.ModeThread:
		for _, text := range p.Entries {
			entries = append(entries, engine.NewTextEntry(text))
		}
	case p.Text != "":
		entries = append(entries, engine.NewTextEntry(p.Text))
	default:
		return nil, fmt.Errorf("no text provided")
	}

	req := engine.NewRequest(mode, entries...)
	req.Tags = p.Tags
	req.QuoteTargetURL = p.QuoteURL
	if p.Media != nil {
		req.Attachment = &engine.MediaRef{
			Path: p.Media.Path,
			Kind: engine.MediaKind(p.Media.Kind),
		}
	}
	return req, nil
}
