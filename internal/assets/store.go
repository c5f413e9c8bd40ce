package assets

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"ticketflow/internal/domain"
	"ticketflow/internal/repo"
)

// Store writes uploaded files under a directory and records them in the
// database. Implements the board's AssetStore port.
type Store struct {
	Dir  string
	Repo repo.Repo
}

// Upload writes the file and upserts its row. Names are flattened to their
// base name so uploads cannot escape the assets directory.
func (s Store) Upload(ctx context.Context, data []byte, name string) (domain.AssetRef, error) {
	clean := sanitizeName(name)
	if clean == "" {
		return domain.AssetRef{}, fmt.Errorf("invalid asset name %q", name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return domain.AssetRef{}, err
	}
	path := filepath.Join(s.Dir, clean)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.AssetRef{}, err
	}
	ref := domain.AssetRef{
		ID:   uuid.NewString(),
		Name: clean,
		Type: contentType(clean),
		Path: path,
		URL:  "/assets/" + clean,
	}
	if err := s.Repo.InsertAsset(ctx, ref); err != nil {
		return domain.AssetRef{}, err
	}
	return ref, nil
}

// List returns all recorded assets with their serving URLs.
func (s Store) List(ctx context.Context) ([]domain.AssetRef, error) {
	refs, err := s.Repo.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	for i := range refs {
		refs[i].URL = "/assets/" + refs[i].Name
	}
	return refs, nil
}

func sanitizeName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == ".." || base == "/" || base == "" {
		return ""
	}
	return base
}

func contentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
