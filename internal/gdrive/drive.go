// Package gdrive wraps the Google Drive v3 API for evidence uploads into a
// trusted contact's Drive.
package gdrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const FolderMimeType = "application/vnd.google-apps.folder"

// Connector turns a contact's stored refresh token into an authenticated
// Drive session.
type Connector struct {
	oauth *oauth2.Config
}

func NewConnector(clientID, clientSecret string) *Connector {
	return &Connector{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{drive.DriveFileScope},
		},
	}
}

// Connect exchanges the refresh token for a short-lived access token and
// opens a Drive client bound to it.
func (c *Connector) Connect(ctx context.Context, refreshToken string) (*Session, error) {
	if c == nil || c.oauth == nil || c.oauth.ClientID == "" {
		return nil, errors.New("drive connector not configured")
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.New("refresh token required")
	}

	accessToken, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("exchange refresh token: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(accessToken)))
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}
	return NewSession(svc), nil
}

type Session struct {
	files *drive.FilesService
}

func NewSession(svc *drive.Service) *Session {
	return &Session{files: svc.Files}
}

// FindFolders returns the ids of non-trashed folders named exactly name, in
// the order Drive lists them.
func (s *Session) FindFolders(ctx context.Context, name string) ([]string, error) {
	list, err := s.files.List().
		Q(FolderQuery(name)).
		Spaces("drive").
		Fields("files(id, name)").
		PageSize(10).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("search folder: %w", err)
	}
	ids := make([]string, 0, len(list.Files))
	for _, f := range list.Files {
		ids = append(ids, f.Id)
	}
	return ids, nil
}

func (s *Session) CreateFolder(ctx context.Context, name string) (string, error) {
	f, err := s.files.Create(&drive.File{
		Name:     name,
		MimeType: FolderMimeType,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	return f.Id, nil
}

func (s *Session) Upload(ctx context.Context, folderID, fileName string, payload []byte) (string, error) {
	contentType := ContentTypeFor(fileName)
	f, err := s.files.Create(&drive.File{
		Name:     fileName,
		MimeType: contentType,
		Parents:  []string{folderID},
	}).
		Media(bytes.NewReader(payload), googleapi.ContentType(contentType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	return f.Id, nil
}

// FolderQuery builds a Drive search expression matching a folder by exact name.
func FolderQuery(name string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(name)
	return fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escaped, FolderMimeType)
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".3gp":  "video/3gpp",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

func ContentTypeFor(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
