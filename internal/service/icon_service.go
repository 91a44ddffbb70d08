package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/repository/storage"
	"github.com/disintegration/imaging"
)

const (
	MaxIconSize   = 2 * 1024 * 1024 // 2MB
	MinIconSide   = 32
	IconSide      = 128
	IconURLExpiry = 15 * time.Minute
)

var (
	ErrIconTooLarge             = errors.New("file too large. Maximum size is 2MB")
	ErrInvalidIconFormat        = errors.New("invalid format. Supported: JPEG, PNG")
	ErrIconTooSmall             = errors.New("image too small. Minimum 32x32 pixels")
	ErrInvalidIconData          = errors.New("invalid image data")
	ErrIconStorageNotConfigured = errors.New("icon storage not configured")
)

// allowedIconExtensions maps accepted extensions to content types
var allowedIconExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// IconService turns uploaded images into square budget icons
type IconService struct {
	storage storage.IconRepository
}

// NewIconService creates a new IconService. A nil repository disables uploads.
func NewIconService(storage storage.IconRepository) *IconService {
	return &IconService{storage: storage}
}

// IsEnabled indicates whether uploads are supported (storage configured)
func (s *IconService) IsEnabled() bool {
	return s != nil && s.storage != nil
}

func (s *IconService) validateAndDecode(data []byte, filename string) (image.Image, error) {
	if len(data) > MaxIconSize {
		return nil, ErrIconTooLarge
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedIconExtensions[ext]; !ok {
		return nil, ErrInvalidIconFormat
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidIconData
	}

	bounds := img.Bounds()
	if bounds.Dx() < MinIconSide || bounds.Dy() < MinIconSide {
		return nil, ErrIconTooSmall
	}
	return img, nil
}

// RenderIcon crops and scales an image to a IconSide x IconSide PNG
func (s *IconService) RenderIcon(data []byte, filename string) ([]byte, error) {
	img, err := s.validateAndDecode(data, filename)
	if err != nil {
		return nil, err
	}

	icon := imaging.Fill(img, IconSide, IconSide, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := png.Encode(&buf, icon); err != nil {
		return nil, fmt.Errorf("failed to encode icon: %w", err)
	}
	return buf.Bytes(), nil
}

// Upload renders and stores an icon, returning the object key to keep on the scenario
func (s *IconService) Upload(ctx context.Context, workspaceID int32, data []byte, filename string) (string, error) {
	if !s.IsEnabled() {
		return "", ErrIconStorageNotConfigured
	}

	encoded, err := s.RenderIcon(data, filename)
	if err != nil {
		return "", err
	}

	key, err := s.storage.Put(ctx, workspaceID, encoded)
	if err != nil {
		return "", fmt.Errorf("failed to upload icon: %w", err)
	}
	return key, nil
}

// URL returns a temporary URL for an icon of the workspace
func (s *IconService) URL(ctx context.Context, workspaceID int32, key string) (string, error) {
	if !s.IsEnabled() {
		return "", ErrIconStorageNotConfigured
	}
	return s.storage.SignedURL(ctx, workspaceID, key, IconURLExpiry)
}

// Remove deletes an icon of the workspace. Keys of other workspaces fail
// with storage.ErrIconNotOwned.
func (s *IconService) Remove(ctx context.Context, workspaceID int32, key string) error {
	if !s.IsEnabled() {
		return ErrIconStorageNotConfigured
	}
	return s.storage.Remove(ctx, workspaceID, key)
}
