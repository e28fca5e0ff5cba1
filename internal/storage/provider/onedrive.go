package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	storagedomain "mail2md-backend/internal/storage/domain"
	tokendomain "mail2md-backend/internal/token/domain"
	tokenusecase "mail2md-backend/internal/token/usecase"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// OneDriveProvider saves documents through the Microsoft Graph drive API.
type OneDriveProvider struct {
	tokens  tokenusecase.TokenStore
	http    *http.Client
	baseURL string
	logger  zerolog.Logger
}

func NewOneDriveProvider(tokens tokenusecase.TokenStore, logger zerolog.Logger) *OneDriveProvider {
	return &OneDriveProvider{
		tokens:  tokens,
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: graphBaseURL,
		logger:  logger.With().Str("component", "onedrive").Logger(),
	}
}

func (p *OneDriveProvider) Name() string { return string(tokendomain.ProviderMicrosoft) }

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type graphDriveItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
	Folder *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
}

func (p *OneDriveProvider) SaveFile(ctx context.Context, userEmail, rootFolder, fileName string, content []byte) storagedomain.DeliveryOutcome {
	outcome := storagedomain.DeliveryOutcome{Provider: p.Name()}

	accessToken, err := p.tokens.GetValidAccessToken(ctx, tokendomain.ProviderMicrosoft, userEmail)
	if err != nil {
		outcome.Error = err.Error()
		outcome.RequiresReauth = errors.Is(err, tokenusecase.ErrNoValidToken)
		return outcome
	}

	fullPath := datedPath(rootFolder, fileName, time.Now())
	folderPath := fullPath[:strings.LastIndex(fullPath, "/")]

	if err := p.ensureFolderPath(ctx, accessToken, folderPath); err != nil {
		return p.classify(outcome, err)
	}

	// upload with replace semantics so re-forwarded emails overwrite
	uploadURL := fmt.Sprintf("%s/me/drive/root:/%s:/content?@microsoft.graph.conflictBehavior=replace",
		p.baseURL, escapePath(fullPath))
	var item graphDriveItem
	if err := p.do(ctx, accessToken, http.MethodPut, uploadURL, "text/markdown", content, &item); err != nil {
		return p.classify(outcome, err)
	}

	outcome.Success = true
	outcome.FilePath = fullPath
	outcome.FileID = item.ID
	outcome.WebURL = item.WebURL
	return outcome
}

// ensureFolderPath creates each missing segment. Graph rejects an upload
// by path when intermediate folders are absent, so every segment is created
// with conflictBehavior=fail and "already exists" answers are ignored.
func (p *OneDriveProvider) ensureFolderPath(ctx context.Context, accessToken, folderPath string) error {
	var built string
	for _, segment := range strings.Split(strings.Trim(folderPath, "/"), "/") {
		if segment == "" {
			continue
		}
		parentURL := p.baseURL + "/me/drive/root/children"
		if built != "" {
			parentURL = fmt.Sprintf("%s/me/drive/root:/%s:/children", p.baseURL, escapePath(built))
		}
		body, _ := json.Marshal(map[string]interface{}{
			"name":                              segment,
			"folder":                            map[string]interface{}{},
			"@microsoft.graph.conflictBehavior": "fail",
		})
		err := p.do(ctx, accessToken, http.MethodPost, parentURL, "application/json", body, nil)
		if err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("create folder %q: %w", segment, err)
		}
		if built == "" {
			built = segment
		} else {
			built = built + "/" + segment
		}
	}
	return nil
}

func (p *OneDriveProvider) ValidateConnection(ctx context.Context, userEmail string) bool {
	accessToken, err := p.tokens.GetValidAccessToken(ctx, tokendomain.ProviderMicrosoft, userEmail)
	if err != nil {
		return false
	}
	return p.do(ctx, accessToken, http.MethodGet, p.baseURL+"/me/drive", "", nil, nil) == nil
}

func (p *OneDriveProvider) ListFolders(ctx context.Context, userEmail, parentPath string) ([]storagedomain.FolderInfo, error) {
	accessToken, err := p.tokens.GetValidAccessToken(ctx, tokendomain.ProviderMicrosoft, userEmail)
	if err != nil {
		return nil, err
	}

	listURL := p.baseURL + "/me/drive/root/children"
	if strings.Trim(parentPath, "/") != "" {
		listURL = fmt.Sprintf("%s/me/drive/root:/%s:/children", p.baseURL, escapePath(strings.Trim(parentPath, "/")))
	}

	var listing struct {
		Value []graphDriveItem `json:"value"`
	}
	if err := p.do(ctx, accessToken, http.MethodGet, listURL, "", nil, &listing); err != nil {
		return nil, err
	}

	folders := make([]storagedomain.FolderInfo, 0, len(listing.Value))
	for _, item := range listing.Value {
		if item.Folder == nil {
			continue
		}
		folders = append(folders, storagedomain.FolderInfo{
			ID:   item.ID,
			Name: item.Name,
			Path: strings.TrimPrefix(strings.Trim(parentPath, "/")+"/"+item.Name, "/"),
		})
	}
	return folders, nil
}

// graphHTTPError keeps the status code next to the provider's own message.
type graphHTTPError struct {
	status  int
	code    string
	message string
}

func (e *graphHTTPError) Error() string {
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("graph API returned status %d", e.status)
}

func isAlreadyExists(err error) bool {
	var ge *graphHTTPError
	return errors.As(err, &ge) && (ge.code == "nameAlreadyExists" || ge.status == http.StatusConflict)
}

func (p *OneDriveProvider) do(ctx context.Context, accessToken, method, rawURL, contentType string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph API unreachable: %w", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 300 {
		ge := &graphHTTPError{status: resp.StatusCode}
		var parsed graphError
		if json.Unmarshal(payload, &parsed) == nil {
			ge.code = parsed.Error.Code
			ge.message = parsed.Error.Message
		}
		return ge
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("malformed graph response: %w", err)
		}
	}
	return nil
}

func (p *OneDriveProvider) classify(outcome storagedomain.DeliveryOutcome, err error) storagedomain.DeliveryOutcome {
	outcome.Success = false
	outcome.Error = err.Error()
	var ge *graphHTTPError
	if errors.As(err, &ge) && (ge.status == http.StatusUnauthorized || ge.status == http.StatusForbidden) {
		outcome.RequiresReauth = true
	}
	p.logger.Warn().Str("error", outcome.Error).Bool("requires_reauth", outcome.RequiresReauth).Msg("onedrive save failed")
	return outcome
}

func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
