package owl

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// Analysis is the backend's stored CV analysis for one identity.
type Analysis struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Summary   string `json:"summary"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CVService submits CVs for analysis and fetches the stored result.
type CVService struct {
	client *Client
}

// Current returns the identity's current CV analysis.
func (s *CVService) Current(ctx context.Context, userID string) (*Analysis, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewInvalidRequestError("user id must not be empty")
	}
	var analysis Analysis
	query := url.Values{"user_id": {userID}}
	if err := s.client.doJSON(ctx, http.MethodGet, "cv-analysis/", query, nil, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// Submit uploads a CV for analysis. Only PDF uploads are accepted; any
// other declared content type is rejected before network I/O, matching the
// product's client-side check.
func (s *CVService) Submit(ctx context.Context, userID, filename, contentType string, r io.Reader) error {
	if strings.TrimSpace(userID) == "" {
		return NewInvalidRequestError("user id must not be empty")
	}
	if !isPDF(contentType) {
		return NewInvalidRequestError("invalid file type: please upload a PDF file")
	}

	return s.client.doMultipart(ctx, "analyze-pdf/", func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return NewInvalidRequestError("failed to build multipart body")
		}
		if _, err := io.Copy(part, r); err != nil {
			return NewInvalidRequestError("failed to read CV file")
		}
		return w.WriteField("user_id", userID)
	}, nil)
}

func isPDF(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/pdf"
}
