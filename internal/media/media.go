// Package media stores uploaded images on Cloudinary.
package media

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"

	"shopnest-backend/internal/config"
	"shopnest-backend/internal/logging"
	"shopnest-backend/internal/models"
)

// uploadAPI is the part of the Cloudinary client the store uses.
type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// Cloudinary spools each upload to a temp file, sends it and removes the
// temp file whatever the outcome.
type Cloudinary struct {
	api     uploadAPI
	folder  string
	tempDir string
	log     logging.Logger
}

func NewCloudinary(cfg config.CloudConfig, tempDir string, log logging.Logger) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to configure cloudinary: %w", err)
	}
	return &Cloudinary{api: &cld.Upload, folder: cfg.Folder, tempDir: tempDir, log: log}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, fh *multipart.FileHeader, folder string) (models.Image, error) {
	tmp, err := c.spool(fh)
	if err != nil {
		return models.Image{}, err
	}
	defer func() {
		if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
			c.log.Warn("failed to remove temp upload", map[string]interface{}{"path": tmp, "error": err})
		}
	}()

	res, err := c.api.Upload(ctx, tmp, uploader.UploadParams{Folder: path.Join(c.folder, folder)})
	if err != nil {
		return models.Image{}, fmt.Errorf("cloudinary upload failed: %w", err)
	}
	if res.Error.Message != "" {
		return models.Image{}, fmt.Errorf("cloudinary upload failed: %s", res.Error.Message)
	}
	return models.Image{PublicID: res.PublicID, URL: res.SecureURL}, nil
}

func (c *Cloudinary) Destroy(ctx context.Context, publicID string) error {
	res, err := c.api.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("cloudinary destroy failed: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy failed: %s", res.Error.Message)
	}
	return nil
}

// spool copies the multipart file into tempDir and returns its path.
func (c *Cloudinary) spool(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	name := filepath.Join(c.tempDir, uuid.NewString()+filepath.Ext(filepath.Base(fh.Filename)))
	dst, err := os.Create(name)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return name, nil
}

// Local keeps nothing: it hands out placeholder references so the API runs
// without Cloudinary credentials.
type Local struct {
	log logging.Logger
}

func NewLocal(log logging.Logger) *Local { return &Local{log: log} }

func (l *Local) Upload(_ context.Context, fh *multipart.FileHeader, folder string) (models.Image, error) {
	id := path.Join(folder, uuid.NewString())
	l.log.Debug("image upload skipped", map[string]interface{}{"file": fh.Filename, "publicId": id})
	return models.Image{PublicID: id, URL: "https://placehold.co/600x400?text=" + path.Base(id)}, nil
}

func (l *Local) Destroy(_ context.Context, publicID string) error {
	l.log.Debug("image destroy skipped", map[string]interface{}{"publicId": publicID})
	return nil
}
