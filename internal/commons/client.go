package commons

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/api"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	log "github.com/sirupsen/logrus"
)

// CategoryInfo is the subset of category metadata the uploader cares about.
type CategoryInfo struct {
	FileCount int `json:"fileCount"`
}

// StructuredData is the depicts/captions slice of a file page's media info.
type StructuredData struct {
	Depicts  []string          `json:"depicts"`
	Captions map[string]string `json:"captions"`
}

// Client talks to the Wikimedia Commons action API: category lookups, file
// uploads, page edits and structured-data reads.
type Client struct {
	api *api.Client

	mu        sync.Mutex
	csrfToken string
}

// NewClient creates a Commons client from config. A nil httpClient gets the
// shared default from the api package.
func NewClient(cfg models.Config, httpClient *http.Client) *Client {
	return &Client{api: api.NewClient(cfg.CommonsApiUrl, cfg, httpClient)}
}

type pageResult struct {
	PageID       int     `json:"pageid"`
	Title        string  `json:"title"`
	Missing      *string `json:"missing,omitempty"`
	CategoryInfo *struct {
		Files int `json:"files"`
	} `json:"categoryinfo,omitempty"`
}

type queryResponse struct {
	Query struct {
		Pages map[string]pageResult `json:"pages"`
	} `json:"query"`
}

// CategoryExists reports whether the category page exists on Commons.
func (c *Client) CategoryExists(ctx context.Context, name string) (bool, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", "Category:"+name)

	var resp queryResponse
	if err := c.api.Get(ctx, params, &resp); err != nil {
		return false, fmt.Errorf("checking category %q: %w", name, err)
	}
	for _, page := range resp.Query.Pages {
		return page.Missing == nil, nil
	}
	return false, nil
}

// GetCategoryInfo returns the file count of an existing category.
func (c *Client) GetCategoryInfo(ctx context.Context, name string) (CategoryInfo, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", "Category:"+name)
	params.Set("prop", "categoryinfo")

	var resp queryResponse
	if err := c.api.Get(ctx, params, &resp); err != nil {
		return CategoryInfo{}, fmt.Errorf("fetching category info for %q: %w", name, err)
	}
	for _, page := range resp.Query.Pages {
		if page.Missing != nil {
			return CategoryInfo{}, fmt.Errorf("category %q: %w", name, api.ErrNotFound)
		}
		if page.CategoryInfo != nil {
			return CategoryInfo{FileCount: page.CategoryInfo.Files}, nil
		}
	}
	return CategoryInfo{}, nil
}

// CreateCategory creates a category page with the given body. Existing pages
// are left alone (createonly).
func (c *Client) CreateCategory(ctx context.Context, name, wikitext string) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("action", "edit")
	params.Set("title", "Category:"+name)
	params.Set("text", wikitext)
	params.Set("createonly", "1")
	params.Set("summary", "Creating category for WikiPortraits upload")
	params.Set("token", token)

	var resp struct {
		Edit struct {
			Result string `json:"result"`
		} `json:"edit"`
	}
	if err := c.api.Post(ctx, params, &resp); err != nil {
		return fmt.Errorf("creating category %q: %w", name, err)
	}
	if resp.Edit.Result != "Success" {
		return fmt.Errorf("creating category %q: edit result %q", name, resp.Edit.Result)
	}
	log.Infof("Created Commons category %q", name)
	return nil
}

// UploadFile uploads file content under the given name with an initial page
// body, returning the new page id.
func (c *Client) UploadFile(ctx context.Context, fileName, wikitext, comment string, file io.Reader) (int, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return 0, err
	}

	params := url.Values{}
	params.Set("action", "upload")
	params.Set("filename", fileName)
	params.Set("text", wikitext)
	params.Set("comment", comment)
	params.Set("token", token)

	var resp struct {
		Upload struct {
			Result    string `json:"result"`
			ImageInfo struct {
				CanonicalTitle string `json:"canonicaltitle"`
			} `json:"imageinfo"`
			PageID int `json:"pageid"`
		} `json:"upload"`
	}
	if err := c.api.Upload(ctx, params, "file", fileName, file, &resp); err != nil {
		return 0, fmt.Errorf("uploading %q: %w", fileName, err)
	}
	if resp.Upload.Result != "Success" {
		return 0, fmt.Errorf("uploading %q: upload result %q", fileName, resp.Upload.Result)
	}

	pageID := resp.Upload.PageID
	if pageID == 0 {
		// Some deployments omit pageid from the upload response; resolve it
		// with a follow-up title query.
		pageID, err = c.resolvePageID(ctx, "File:"+fileName)
		if err != nil {
			return 0, fmt.Errorf("resolving page id for %q after upload: %w", fileName, err)
		}
	}
	log.Infof("Uploaded %q (page id %d)", fileName, pageID)
	return pageID, nil
}

// UpdatePageBody replaces the wikitext of an existing file page.
func (c *Client) UpdatePageBody(ctx context.Context, pageID int, wikitext string) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("action", "edit")
	params.Set("pageid", strconv.Itoa(pageID))
	params.Set("text", wikitext)
	params.Set("summary", "Updating file description via WikiPortraits")
	params.Set("token", token)

	var resp struct {
		Edit struct {
			Result string `json:"result"`
		} `json:"edit"`
	}
	if err := c.api.Post(ctx, params, &resp); err != nil {
		return fmt.Errorf("updating page %d: %w", pageID, err)
	}
	if resp.Edit.Result != "Success" {
		return fmt.Errorf("updating page %d: edit result %q", pageID, resp.Edit.Result)
	}
	return nil
}

// GetStructuredData reads the depicts statements and captions of a file
// page's media info entity (M<pageid>).
func (c *Client) GetStructuredData(ctx context.Context, pageID int) (*StructuredData, error) {
	params := url.Values{}
	params.Set("action", "wbgetentities")
	params.Set("ids", fmt.Sprintf("M%d", pageID))

	var resp struct {
		Entities map[string]struct {
			Missing *string `json:"missing,omitempty"`
			Labels  map[string]struct {
				Value string `json:"value"`
			} `json:"labels,omitempty"` // media info captions live in labels
			Statements json.RawMessage `json:"statements,omitempty"`
		} `json:"entities"`
	}
	if err := c.api.Get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("fetching structured data for page %d: %w", pageID, err)
	}

	sd := &StructuredData{Captions: make(map[string]string)}
	for _, entity := range resp.Entities {
		if entity.Missing != nil {
			continue
		}
		for lang, term := range entity.Labels {
			sd.Captions[lang] = term.Value
		}
		sd.Depicts = append(sd.Depicts, decodeDepicts(entity.Statements)...)
	}
	return sd, nil
}

// SetStructuredData writes depicts statements, captions, capture date and
// coordinates onto a file page's media info entity. Only the provided parts
// are sent; a nil slice or map leaves that part untouched.
func (c *Client) SetStructuredData(ctx context.Context, pageID int, update *StructuredDataUpdate) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return err
	}

	data := map[string]any{}
	if update.Captions != nil {
		labels := map[string]map[string]string{}
		for lang, text := range update.Captions {
			labels[lang] = map[string]string{"language": lang, "value": text}
		}
		data["labels"] = labels
	}

	var claims []map[string]any
	for _, id := range update.Depicts {
		claims = append(claims, entitySnakClaim(models.PropDepicts, id))
	}
	if update.CaptureDate != "" {
		claims = append(claims, timeSnakClaim(models.PropInception, update.CaptureDate))
	}
	if update.GPS != nil {
		claims = append(claims, coordinateSnakClaim(models.PropCoordinates, update.GPS))
	}
	if claims != nil {
		data["claims"] = claims
	}
	if len(data) == 0 {
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding structured data for page %d: %w", pageID, err)
	}

	params := url.Values{}
	params.Set("action", "wbeditentity")
	params.Set("id", fmt.Sprintf("M%d", pageID))
	params.Set("data", string(payload))
	params.Set("summary", "Updating structured data via WikiPortraits")
	params.Set("token", token)

	var resp struct {
		Success int `json:"success"`
	}
	if err := c.api.Post(ctx, params, &resp); err != nil {
		return fmt.Errorf("updating structured data for page %d: %w", pageID, err)
	}
	if resp.Success != 1 {
		return fmt.Errorf("updating structured data for page %d: edit not successful", pageID)
	}
	return nil
}

// StructuredDataUpdate is one media info write: any nil part is skipped.
type StructuredDataUpdate struct {
	Depicts     []string
	Captions    map[string]string
	CaptureDate string // YYYY-MM-DD
	GPS         *models.GPS
}

func entitySnakClaim(property, entityID string) map[string]any {
	return map[string]any{
		"mainsnak": map[string]any{
			"snaktype": "value",
			"property": property,
			"datavalue": map[string]any{
				"type": "wikibase-entityid",
				"value": map[string]any{
					"entity-type": "item",
					"id":          entityID,
				},
			},
		},
		"type": "statement",
		"rank": "normal",
	}
}

func timeSnakClaim(property, date string) map[string]any {
	return map[string]any{
		"mainsnak": map[string]any{
			"snaktype": "value",
			"property": property,
			"datavalue": map[string]any{
				"type": "time",
				"value": map[string]any{
					"time":          "+" + date + "T00:00:00Z",
					"timezone":      0,
					"before":        0,
					"after":         0,
					"precision":     11,
					"calendarmodel": "http://www.wikidata.org/entity/Q1985727",
				},
			},
		},
		"type": "statement",
		"rank": "normal",
	}
}

func coordinateSnakClaim(property string, gps *models.GPS) map[string]any {
	return map[string]any{
		"mainsnak": map[string]any{
			"snaktype": "value",
			"property": property,
			"datavalue": map[string]any{
				"type": "globecoordinate",
				"value": map[string]any{
					"latitude":  gps.Lat,
					"longitude": gps.Lon,
					"precision": 0.0001,
					"globe":     "http://www.wikidata.org/entity/Q2",
				},
			},
		},
		"type": "statement",
		"rank": "normal",
	}
}

// decodeDepicts pulls P180 entity ids out of a media info statements block.
// The block is `[]` when empty and an object keyed by property otherwise,
// hence the raw-message handling.
func decodeDepicts(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var statements map[string][]struct {
		MainSnak struct {
			DataValue struct {
				Value struct {
					ID string `json:"id"`
				} `json:"value"`
			} `json:"datavalue"`
		} `json:"mainsnak"`
	}
	if err := json.Unmarshal(raw, &statements); err != nil {
		return nil
	}
	var ids []string
	for _, st := range statements[models.PropDepicts] {
		if id := st.MainSnak.DataValue.Value.ID; id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// resolvePageID looks up a page id by title.
func (c *Client) resolvePageID(ctx context.Context, title string) (int, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", title)

	var resp queryResponse
	if err := c.api.Get(ctx, params, &resp); err != nil {
		return 0, err
	}
	for _, page := range resp.Query.Pages {
		if page.Missing == nil && page.PageID != 0 {
			return page.PageID, nil
		}
	}
	return 0, fmt.Errorf("page %q: %w", title, api.ErrNotFound)
}

// getToken fetches and caches a CSRF token for write operations.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.csrfToken != "" {
		return c.csrfToken, nil
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "tokens")
	params.Set("type", "csrf")

	var resp struct {
		Query struct {
			Tokens struct {
				CsrfToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	if err := c.api.Get(ctx, params, &resp); err != nil {
		return "", fmt.Errorf("fetching csrf token: %w", err)
	}
	if resp.Query.Tokens.CsrfToken == "" {
		return "", fmt.Errorf("csrf token missing from response")
	}
	c.csrfToken = resp.Query.Tokens.CsrfToken
	return c.csrfToken, nil
}
