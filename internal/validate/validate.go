// Package validate provides functions to validate claim input and evidence uploads.
package validate

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kylejryan/insurance-claims-pipeline/internal/models"
)

// Evidence kinds accepted by the presign endpoint.
const (
	KindDocuments = "documents"
	KindPhotos    = "photos"
)

var docExts = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

var photoExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// EvidenceKindOK checks the upload kind is documents or photos.
func EvidenceKindOK(kind string) error {
	if kind != KindDocuments && kind != KindPhotos {
		return fmt.Errorf("kind must be %q or %q", KindDocuments, KindPhotos)
	}
	return nil
}

// FilenameForKind checks the filename extension is allowed for the kind and
// returns the canonical lowercase extension.
func FilenameForKind(kind, fn string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fn))
	exts := docExts
	if kind == KindPhotos {
		exts = photoExts
	}
	if _, ok := exts[ext]; !ok {
		return "", fmt.Errorf("extension %q not allowed for %s", ext, kind)
	}
	return ext, nil
}

// ContentTypeForKind checks the declared Content-Type matches the extension.
func ContentTypeForKind(kind, fn, ct string) error {
	ext, err := FilenameForKind(kind, fn)
	if err != nil {
		return err
	}
	exts := docExts
	if kind == KindPhotos {
		exts = photoExts
	}
	want := exts[ext]
	if strings.TrimSpace(strings.ToLower(ct)) != want {
		return fmt.Errorf("Content-Type must be %s", want)
	}
	return nil
}

// ClaimTypeOK checks the claim type is one of the supported categories.
func ClaimTypeOK(t string) error {
	for _, ct := range models.AllClaimTypes {
		if models.ClaimType(t) == ct {
			return nil
		}
	}
	return fmt.Errorf("unknown claim type %q", t)
}

// AmountOK checks a requested amount is positive.
func AmountOK(amount float64) error {
	if amount <= 0 {
		return errors.New("requested amount must be positive")
	}
	return nil
}

// DescriptionOK checks the description is non-empty after trimming whitespace.
func DescriptionOK(d string) error {
	if strings.TrimSpace(d) == "" {
		return errors.New("description required")
	}
	return nil
}
