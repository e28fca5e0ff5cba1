package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	storagedomain "mail2md-backend/internal/storage/domain"
	tokendomain "mail2md-backend/internal/token/domain"
	tokenusecase "mail2md-backend/internal/token/usecase"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

// GoogleDriveProvider saves documents through the Drive v3 API.
type GoogleDriveProvider struct {
	tokens tokenusecase.TokenStore
	logger zerolog.Logger
}

func NewGoogleDriveProvider(tokens tokenusecase.TokenStore, logger zerolog.Logger) *GoogleDriveProvider {
	return &GoogleDriveProvider{
		tokens: tokens,
		logger: logger.With().Str("component", "googledrive").Logger(),
	}
}

func (p *GoogleDriveProvider) Name() string { return string(tokendomain.ProviderGoogle) }

func (p *GoogleDriveProvider) service(ctx context.Context, userEmail string) (*drive.Service, error) {
	accessToken, err := p.tokens.GetValidAccessToken(ctx, tokendomain.ProviderGoogle, userEmail)
	if err != nil {
		return nil, err
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}
	return srv, nil
}

func (p *GoogleDriveProvider) SaveFile(ctx context.Context, userEmail, rootFolder, fileName string, content []byte) storagedomain.DeliveryOutcome {
	outcome := storagedomain.DeliveryOutcome{Provider: p.Name()}

	srv, err := p.service(ctx, userEmail)
	if err != nil {
		return p.failedOutcome(outcome, err)
	}

	fullPath := datedPath(rootFolder, fileName, time.Now())
	folderPath := fullPath[:strings.LastIndex(fullPath, "/")]

	parentID, err := p.ensureFolderPath(srv, folderPath)
	if err != nil {
		return p.failedOutcome(outcome, err)
	}

	// replace an existing file of the same name instead of duplicating it
	existingID, err := p.findChild(srv, parentID, fileName, false)
	if err != nil {
		return p.failedOutcome(outcome, err)
	}

	media := bytes.NewReader(content)
	var saved *drive.File
	if existingID != "" {
		saved, err = srv.Files.Update(existingID, &drive.File{}).Media(media).Fields("id", "webViewLink").Do()
	} else {
		saved, err = srv.Files.Create(&drive.File{
			Name:     fileName,
			Parents:  []string{parentID},
			MimeType: "text/markdown",
		}).Media(media).Fields("id", "webViewLink").Do()
	}
	if err != nil {
		return p.failedOutcome(outcome, err)
	}

	outcome.Success = true
	outcome.FilePath = fullPath
	outcome.FileID = saved.Id
	outcome.WebURL = saved.WebViewLink
	return outcome
}

// ensureFolderPath walks the path segments under My Drive, searching before
// creating so repeated deliveries never mint duplicate folders.
func (p *GoogleDriveProvider) ensureFolderPath(srv *drive.Service, folderPath string) (string, error) {
	parentID := "root"
	for _, segment := range strings.Split(strings.Trim(folderPath, "/"), "/") {
		if segment == "" {
			continue
		}
		id, err := p.findChild(srv, parentID, segment, true)
		if err != nil {
			return "", err
		}
		if id == "" {
			created, err := srv.Files.Create(&drive.File{
				Name:     segment,
				MimeType: driveFolderMimeType,
				Parents:  []string{parentID},
			}).Fields("id").Do()
			if err != nil {
				return "", fmt.Errorf("create folder %q: %w", segment, err)
			}
			id = created.Id
		}
		parentID = id
	}
	return parentID, nil
}

func (p *GoogleDriveProvider) findChild(srv *drive.Service, parentID, name string, folder bool) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		strings.ReplaceAll(name, "'", "\\'"), parentID)
	if folder {
		query += fmt.Sprintf(" and mimeType = '%s'", driveFolderMimeType)
	}
	list, err := srv.Files.List().Q(query).PageSize(1).Fields("files(id)").Do()
	if err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (p *GoogleDriveProvider) ValidateConnection(ctx context.Context, userEmail string) bool {
	srv, err := p.service(ctx, userEmail)
	if err != nil {
		return false
	}
	_, err = srv.About.Get().Fields("user").Do()
	return err == nil
}

func (p *GoogleDriveProvider) ListFolders(ctx context.Context, userEmail, parentPath string) ([]storagedomain.FolderInfo, error) {
	srv, err := p.service(ctx, userEmail)
	if err != nil {
		return nil, err
	}

	parentID := "root"
	if strings.Trim(parentPath, "/") != "" {
		parentID, err = p.ensureFolderPath(srv, parentPath)
		if err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false", parentID, driveFolderMimeType)
	list, err := srv.Files.List().Q(query).PageSize(200).Fields("files(id, name)").Do()
	if err != nil {
		return nil, err
	}

	folders := make([]storagedomain.FolderInfo, 0, len(list.Files))
	for _, f := range list.Files {
		folders = append(folders, storagedomain.FolderInfo{
			ID:   f.Id,
			Name: f.Name,
			Path: strings.TrimPrefix(strings.Trim(parentPath, "/")+"/"+f.Name, "/"),
		})
	}
	return folders, nil
}

// failedOutcome classifies the error: missing/invalid tokens and HTTP
// 401/403 require re-authorization, everything else is surfaced verbatim.
func (p *GoogleDriveProvider) failedOutcome(outcome storagedomain.DeliveryOutcome, err error) storagedomain.DeliveryOutcome {
	outcome.Success = false
	outcome.Error = err.Error()

	if errors.Is(err, tokenusecase.ErrNoValidToken) {
		outcome.RequiresReauth = true
		return outcome
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 401 || apiErr.Code == 403 {
			outcome.RequiresReauth = true
		}
		if apiErr.Message != "" {
			outcome.Error = apiErr.Message
		}
	}
	p.logger.Warn().Str("error", outcome.Error).Bool("requires_reauth", outcome.RequiresReauth).Msg("drive save failed")
	return outcome
}
