package common

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tendant/simple-idm-profile/pkg/domain"
	"github.com/tendant/simple-idm-profile/pkg/workflow"
)

// AvatarField is the multipart form field carrying the image.
const AvatarField = "avatar"

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// IsMultipart reports whether the request carries a multipart form.
func IsMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// ReadAvatar reads the avatar file from a parsed multipart form. A missing
// file returns nil without error. The content type is sniffed from the
// bytes, not taken from the client.
func ReadAvatar(r *http.Request, maxBytes int64) (*workflow.Avatar, error) {
	file, _, err := r.FormFile(AvatarField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, &domain.ValidationError{Field: AvatarField, Message: fmt.Sprintf("Image must be at most %d KB", maxBytes/1024)}
	}
	if len(data) == 0 {
		return nil, nil
	}

	contentType := http.DetectContentType(data)
	if !allowedImageTypes[contentType] {
		return nil, &domain.ValidationError{Field: AvatarField, Message: "Please choose a JPEG, PNG, GIF or WebP image"}
	}
	return &workflow.Avatar{Data: data, ContentType: contentType}, nil
}
