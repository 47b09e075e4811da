package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/api"
	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	log "github.com/sirupsen/logrus"
)

// Client talks to the Wikidata action API (wbgetentities, wbsearchentities,
// wbeditentity). It is deliberately thin: the reconciliation core owns all
// decisions about what to read or write.
type Client struct {
	api *api.Client

	mu        sync.Mutex
	csrfToken string
}

// NewClient creates a Wikidata client from config. A nil httpClient gets the
// shared default from the api package.
func NewClient(cfg models.Config, httpClient *http.Client) *Client {
	return &Client{api: api.NewClient(cfg.WikidataApiUrl, cfg, httpClient)}
}

// --- wire format ---

type wireValue struct {
	ID        string  `json:"id,omitempty"`
	Time      string  `json:"time,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

type wireSnak struct {
	SnakType  string `json:"snaktype"`
	Property  string `json:"property"`
	DataValue *struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	} `json:"datavalue,omitempty"`
}

type wireStatement struct {
	MainSnak wireSnak `json:"mainsnak"`
	Type     string   `json:"type"`
	Rank     string   `json:"rank"`
}

type wireTerm struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type wireSitelink struct {
	Site  string `json:"site"`
	Title string `json:"title"`
}

type wireEntity struct {
	ID           string                     `json:"id"`
	Missing      *string                    `json:"missing,omitempty"`
	Labels       map[string]wireTerm        `json:"labels,omitempty"`
	Descriptions map[string]wireTerm        `json:"descriptions,omitempty"`
	Claims       map[string][]wireStatement `json:"claims,omitempty"`
	Sitelinks    map[string]wireSitelink    `json:"sitelinks,omitempty"`
}

// GetEntity fetches a fresh copy of an entity. The reconciliation helpers
// always call this before deciding a property is missing; cached copies are
// never trusted for that decision.
func (c *Client) GetEntity(ctx context.Context, id string, languages []string) (*models.Entity, error) {
	if models.IsPendingID(id) {
		return nil, fmt.Errorf("entity %s has a pending id and does not exist remotely", id)
	}

	params := url.Values{}
	params.Set("action", "wbgetentities")
	params.Set("ids", id)
	params.Set("props", "labels|descriptions|claims|sitelinks")
	if len(languages) > 0 {
		params.Set("languages", strings.Join(languages, "|"))
	}

	var resp struct {
		Entities map[string]wireEntity `json:"entities"`
	}
	if err := c.api.Get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("fetching entity %s: %w", id, err)
	}

	we, ok := resp.Entities[id]
	if !ok || we.Missing != nil {
		return nil, fmt.Errorf("entity %s: %w", id, api.ErrNotFound)
	}
	return decodeEntity(we), nil
}

// SearchEntities runs a label/alias search and returns lightweight entities
// (id, label, description only).
func (c *Client) SearchEntities(ctx context.Context, query string, limit int) ([]*models.Entity, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("action", "wbsearchentities")
	params.Set("search", query)
	params.Set("language", "en")
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("type", "item")

	var resp struct {
		Search []struct {
			ID          string `json:"id"`
			Label       string `json:"label"`
			Description string `json:"description"`
		} `json:"search"`
	}
	if err := c.api.Get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("searching entities for %q: %w", query, err)
	}

	results := make([]*models.Entity, 0, len(resp.Search))
	for _, s := range resp.Search {
		results = append(results, &models.Entity{
			ID:           s.ID,
			Labels:       map[string]string{"en": s.Label},
			Descriptions: map[string]string{"en": s.Description},
		})
	}
	return results, nil
}

// CreateEntity creates a new item from a local draft and returns the real id
// assigned by Wikidata. The draft keeps its pending id; callers are expected
// to rewrite references themselves.
func (c *Client) CreateEntity(ctx context.Context, draft *models.Entity) (string, error) {
	data, err := encodeEntityData(draft)
	if err != nil {
		return "", err
	}

	token, err := c.getToken(ctx)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("action", "wbeditentity")
	params.Set("new", "item")
	params.Set("data", data)
	params.Set("token", token)

	var resp struct {
		Entity struct {
			ID string `json:"id"`
		} `json:"entity"`
		Success int `json:"success"`
	}
	if err := c.api.Post(ctx, params, &resp); err != nil {
		return "", fmt.Errorf("creating entity %q: %w", draft.Label("en"), err)
	}
	if resp.Success != 1 || resp.Entity.ID == "" {
		return "", fmt.Errorf("creating entity %q: API reported no success", draft.Label("en"))
	}
	log.Infof("Created Wikidata entity %s", resp.Entity.ID)
	return resp.Entity.ID, nil
}

// UpdateEntity adds the given claims to an existing entity.
func (c *Client) UpdateEntity(ctx context.Context, id string, changes []models.PropertyChange) error {
	if models.IsPendingID(id) {
		return fmt.Errorf("refusing to update pending entity %s", id)
	}
	if len(changes) == 0 {
		return nil
	}

	statements := make([]wireStatement, 0, len(changes))
	for _, ch := range changes {
		st, err := encodeStatement(ch.Property, ch.Claim)
		if err != nil {
			return fmt.Errorf("encoding change %s on %s: %w", ch.Property, id, err)
		}
		statements = append(statements, st)
	}
	data, err := json.Marshal(map[string]interface{}{"claims": statements})
	if err != nil {
		return fmt.Errorf("marshalling claims for %s: %w", id, err)
	}

	token, err := c.getToken(ctx)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("action", "wbeditentity")
	params.Set("id", id)
	params.Set("data", string(data))
	params.Set("token", token)

	var resp struct {
		Success int `json:"success"`
	}
	if err := c.api.Post(ctx, params, &resp); err != nil {
		return fmt.Errorf("updating entity %s: %w", id, err)
	}
	if resp.Success != 1 {
		return fmt.Errorf("updating entity %s: API reported no success", id)
	}
	log.Infof("Updated Wikidata entity %s (%d claims)", id, len(changes))
	return nil
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

// --- encoding/decoding helpers ---

func decodeEntity(we wireEntity) *models.Entity {
	e := &models.Entity{
		ID:           we.ID,
		Labels:       make(map[string]string, len(we.Labels)),
		Descriptions: make(map[string]string, len(we.Descriptions)),
		Claims:       make(map[string][]models.Claim, len(we.Claims)),
		Sitelinks:    make(map[string]string, len(we.Sitelinks)),
	}
	for lang, term := range we.Labels {
		e.Labels[lang] = term.Value
	}
	for lang, term := range we.Descriptions {
		e.Descriptions[lang] = term.Value
	}
	for site, link := range we.Sitelinks {
		e.Sitelinks[site] = link.Title
	}
	for prop, statements := range we.Claims {
		for _, st := range statements {
			if claim, ok := decodeSnak(st.MainSnak); ok {
				e.Claims[prop] = append(e.Claims[prop], claim)
			}
		}
	}
	return e
}

func decodeSnak(snak wireSnak) (models.Claim, bool) {
	if snak.SnakType != "value" || snak.DataValue == nil {
		return models.Claim{}, false
	}
	switch snak.DataValue.Type {
	case "wikibase-entityid":
		var v wireValue
		if err := json.Unmarshal(snak.DataValue.Value, &v); err != nil || v.ID == "" {
			return models.Claim{}, false
		}
		return models.Claim{Kind: models.ClaimEntity, EntityID: v.ID}, true
	case "string":
		var s string
		if err := json.Unmarshal(snak.DataValue.Value, &s); err != nil {
			return models.Claim{}, false
		}
		return models.Claim{Kind: models.ClaimString, Text: s}, true
	case "time":
		var v wireValue
		if err := json.Unmarshal(snak.DataValue.Value, &v); err != nil || v.Time == "" {
			return models.Claim{}, false
		}
		return models.Claim{Kind: models.ClaimTime, Time: trimWikibaseTime(v.Time)}, true
	case "globecoordinate":
		var v wireValue
		if err := json.Unmarshal(snak.DataValue.Value, &v); err != nil {
			return models.Claim{}, false
		}
		return models.Claim{
			Kind:       models.ClaimCoordinate,
			Coordinate: &models.GPS{Lat: v.Latitude, Lon: v.Longitude},
		}, true
	default:
		return models.Claim{}, false
	}
}

// trimWikibaseTime reduces "+2024-06-01T00:00:00Z" to "2024-06-01".
func trimWikibaseTime(t string) string {
	t = strings.TrimPrefix(t, "+")
	if idx := strings.Index(t, "T"); idx > 0 {
		t = t[:idx]
	}
	return t
}

func encodeStatement(property string, claim models.Claim) (wireStatement, error) {
	var valueType string
	var value interface{}
	switch claim.Kind {
	case models.ClaimEntity:
		valueType = "wikibase-entityid"
		value = map[string]string{"entity-type": "item", "id": claim.EntityID}
	case models.ClaimString:
		valueType = "string"
		value = claim.Text
	case models.ClaimTime:
		valueType = "time"
		value = map[string]interface{}{
			"time":      "+" + claim.Time + "T00:00:00Z",
			"precision": 11, // day
			"calendarmodel": "http://www.wikidata.org/entity/Q1985727",
		}
	case models.ClaimCoordinate:
		if claim.Coordinate == nil {
			return wireStatement{}, fmt.Errorf("coordinate claim without coordinate")
		}
		valueType = "globecoordinate"
		value = map[string]interface{}{
			"latitude":  claim.Coordinate.Lat,
			"longitude": claim.Coordinate.Lon,
			"precision": 0.0001,
			"globe":     "http://www.wikidata.org/entity/Q2",
		}
	default:
		return wireStatement{}, fmt.Errorf("unsupported claim kind %q", claim.Kind)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return wireStatement{}, err
	}
	st := wireStatement{Type: "statement", Rank: "normal"}
	st.MainSnak = wireSnak{SnakType: "value", Property: property}
	st.MainSnak.DataValue = &struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}{Type: valueType, Value: raw}
	return st, nil
}

func encodeEntityData(draft *models.Entity) (string, error) {
	labels := make(map[string]wireTerm, len(draft.Labels))
	for lang, v := range draft.Labels {
		labels[lang] = wireTerm{Language: lang, Value: v}
	}
	descriptions := make(map[string]wireTerm, len(draft.Descriptions))
	for lang, v := range draft.Descriptions {
		descriptions[lang] = wireTerm{Language: lang, Value: v}
	}
	var statements []wireStatement
	for prop, claims := range draft.Claims {
		for _, claim := range claims {
			st, err := encodeStatement(prop, claim)
			if err != nil {
				return "", fmt.Errorf("encoding draft claim %s: %w", prop, err)
			}
			statements = append(statements, st)
		}
	}

	data := map[string]interface{}{
		"labels":       labels,
		"descriptions": descriptions,
	}
	if len(statements) > 0 {
		data["claims"] = statements
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshalling entity draft: %w", err)
	}
	return string(raw), nil
}
