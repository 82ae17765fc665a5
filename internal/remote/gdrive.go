package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/xxxsen/ragdrive/internal/model"
	appErr "github.com/xxxsen/ragdrive/internal/pkg/errors"
)

const (
	mimeTypeGoogleDoc    = "application/vnd.google-apps.document"
	mimeTypeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	mimeTypeGoogleSlides = "application/vnd.google-apps.presentation"
	mimeTypeFolder       = "application/vnd.google-apps.folder"
	mimeTypeGoogleApps   = "application/vnd.google-apps."

	exportMimeText = "text/plain"
	exportMimeCSV  = "text/csv"
)

var (
	errUnauthorized = errors.New("drive: unauthorised (invalid credentials)")
	errForbidden    = errors.New("drive: forbidden (folder not shared with the service account?)")
	errNotFound     = fmt.Errorf("drive: folder or file %w", appErr.ErrNotFound)
	errRateLimited  = fmt.Errorf("drive: %w", appErr.ErrTooMany)
	errTooLarge     = errors.New("drive: file exceeds max_file_bytes")
)

type gdriveConfig struct {
	CredentialsFile   string  `json:"credentials_file"`
	CredentialsJSON   string  `json:"credentials_json"`
	Endpoint          string  `json:"endpoint"`
	PageSize          int64   `json:"page_size"`
	MaxFileBytes      int64   `json:"max_file_bytes"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

type gdriveStore struct {
	svc          *drive.Service
	pageSize     int64
	maxFileBytes int64
	limiter      *rate.Limiter

	mu      sync.Mutex
	retryAt time.Time
}

func init() {
	Register("gdrive", createGDriveStore)
}

func createGDriveStore(args interface{}) (Store, error) {
	cfg := &gdriveConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	ctx := context.Background()
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	switch {
	case cfg.CredentialsJSON != "" || cfg.CredentialsFile != "":
		raw := []byte(cfg.CredentialsJSON)
		if len(raw) == 0 {
			data, err := os.ReadFile(cfg.CredentialsFile)
			if err != nil {
				return nil, fmt.Errorf("read drive credentials: %w", err)
			}
			raw = data
		}
		creds, err := google.CredentialsFromJSON(ctx, raw, drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("parse drive credentials: %w", err)
		}
		opts = append(opts, option.WithTokenSource(creds.TokenSource))
	case cfg.Endpoint != "":
		opts = append(opts, option.WithoutAuthentication())
	default:
		return nil, fmt.Errorf("gdrive credentials_file or credentials_json is required")
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init drive service: %w", err)
	}
	return newGDriveStore(svc, cfg), nil
}

func newGDriveStore(svc *drive.Service, cfg *gdriveConfig) *gdriveStore {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 50 << 20
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 8
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &gdriveStore{
		svc:          svc,
		pageSize:     cfg.PageSize,
		maxFileBytes: cfg.MaxFileBytes,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

func (s *gdriveStore) Name() string {
	return "gdrive"
}

func (s *gdriveStore) wait(ctx context.Context) error {
	s.mu.Lock()
	retryAt := s.retryAt
	s.mu.Unlock()
	if d := time.Until(retryAt); d > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	return s.limiter.Wait(ctx)
}

// classify maps googleapi status codes onto stable errors and backs off
// the limiter after a 429.
func (s *gdriveStore) classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", errUnauthorized, gerr.Message)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", errForbidden, gerr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", errNotFound, gerr.Message)
	case http.StatusTooManyRequests:
		s.mu.Lock()
		s.retryAt = time.Now().Add(30 * time.Second)
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", errRateLimited, gerr.Message)
	}
	return err
}

func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

func (s *gdriveStore) List(ctx context.Context, folderID string) ([]model.RemoteFile, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))
	var files []model.RemoteFile
	pageToken := ""
	for {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		call := s.svc.Files.List().
			Q(query).
			PageSize(s.pageSize).
			Fields("nextPageToken, files(id, name, mimeType, size)").
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			OrderBy("name").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, s.classify(err)
		}
		for _, f := range resp.Files {
			if f.MimeType == mimeTypeFolder {
				continue
			}
			files = append(files, model.RemoteFile{ID: f.Id, Name: f.Name, MIMEType: f.MimeType})
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return files, nil
}

func (s *gdriveStore) Download(ctx context.Context, file model.RemoteFile) (*model.RawFile, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	contentType := file.MIMEType
	var (
		resp *http.Response
		err  error
	)
	switch {
	case file.MIMEType == mimeTypeGoogleSheet:
		contentType = exportMimeCSV
		resp, err = s.svc.Files.Export(file.ID, exportMimeCSV).Context(ctx).Download()
	case file.MIMEType == mimeTypeGoogleDoc, file.MIMEType == mimeTypeGoogleSlides:
		contentType = exportMimeText
		resp, err = s.svc.Files.Export(file.ID, exportMimeText).Context(ctx).Download()
	case strings.HasPrefix(file.MIMEType, mimeTypeGoogleApps):
		return nil, fmt.Errorf("drive: %s cannot be exported as text", file.MIMEType)
	default:
		resp, err = s.svc.Files.Get(file.ID).SupportsAllDrives(true).Context(ctx).Download()
	}
	if err != nil {
		return nil, s.classify(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read drive content: %w", err)
	}
	if int64(len(data)) > s.maxFileBytes {
		return nil, errTooLarge
	}
	return &model.RawFile{
		ID:          file.ID,
		Name:        file.Name,
		ContentType: contentType,
		Data:        data,
	}, nil
}
