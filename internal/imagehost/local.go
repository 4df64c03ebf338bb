package imagehost

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Local пишет картинки на диск; сервер раздаёт их по /images/*
type Local struct {
	root    string
	baseURL string
}

func NewLocal(root, baseURL string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("IMAGES_LOCAL_DIR is required when IMAGES_PROVIDER=local")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *Local) Root() string {
	return s.root
}

func (s *Local) Upload(_ context.Context, up Upload) (*Image, error) {
	id := uuid.NewString()
	name := id + extension(up)
	p := filepath.Join(s.root, name)

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, up.Data, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, p); err != nil {
		return nil, err
	}
	return &Image{ID: id, URL: s.baseURL + "/images/" + name}, nil
}
