package foundry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/tidwall/gjson"
)

// DownloadTree fetches every journal folder and entry of the world.
func (c *Client) DownloadTree(ctx context.Context) (journal.Tree, error) {
	body, err := c.do(ctx, http.MethodGet, treeEndpoint, nil, true)
	if err != nil {
		return journal.Tree{}, fmt.Errorf("downloading journal tree: %w", err)
	}

	if !gjson.ValidBytes(body) {
		return journal.Tree{}, fmt.Errorf("downloading journal tree: invalid JSON: %s", sanitizeResponseBody(body))
	}

	var (
		tree journal.Tree
		errs []error
	)

	gjson.GetBytes(body, "folders").ForEach(func(_, value gjson.Result) bool {
		// The world also has folders for actors, items and scenes.
		if t := value.Get("type"); t.Exists() && t.Str != string(journal.KindEntry) {
			return true
		}

		f, err := journal.DecodeFolder([]byte(value.Raw))
		if err != nil {
			errs = append(errs, err)
			return true
		}

		tree.Folders = append(tree.Folders, f)

		return true
	})

	gjson.GetBytes(body, "entries").ForEach(func(_, value gjson.Result) bool {
		e, err := journal.DecodeEntry([]byte(value.Raw))
		if err != nil {
			errs = append(errs, err)
			return true
		}

		tree.Entries = append(tree.Entries, e)

		return true
	})

	if len(errs) > 0 {
		c.logger.Warn("skipped undecodable documents", slog.Int("count", len(errs)), slog.String("error", errors.Join(errs...).Error()))
	}

	c.logger.Debug("downloaded journal tree",
		slog.Int("folders", len(tree.Folders)),
		slog.Int("entries", len(tree.Entries)),
	)

	return tree, nil
}

type createFolderRequest struct {
	Name   string  `json:"name"`
	Folder *string `json:"folder"`
	Type   string  `json:"type"`
}

// CreateFolder creates a journal folder under parentID, or at the root
// when parentID is empty, and returns the new identifier.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	req := createFolderRequest{Name: name, Folder: optional(parentID), Type: string(journal.KindEntry)}

	body, err := c.do(ctx, http.MethodPost, foldersEndpoint, req, false)
	if err != nil {
		return "", fmt.Errorf("creating folder %q: %w", name, err)
	}

	return createdID(body, "folder", name)
}

type pagePayload struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name"`
	Sort int64  `json:"sort"`
	Type string `json:"type"`
	Text struct {
		Content string `json:"content"`
		Format  int    `json:"format"`
	} `json:"text"`
}

// htmlTextFormat is the remote code for HTML page text.
const htmlTextFormat = 1

func pagePayloads(pages []journal.Page) []pagePayload {
	out := make([]pagePayload, 0, len(pages))
	for _, p := range pages {
		pp := pagePayload{ID: p.ID(), Name: p.Name(), Sort: p.Sort(), Type: "text"}
		if t, ok := p.Attrs()["type"].(string); ok && t != "" {
			pp.Type = t
		}

		pp.Text.Content = p.Content()
		pp.Text.Format = htmlTextFormat
		out = append(out, pp)
	}

	return out
}

type createEntryRequest struct {
	Name   string        `json:"name"`
	Folder *string       `json:"folder"`
	Pages  []pagePayload `json:"pages"`
}

// CreateEntry creates a journal entry with its pages and returns the new
// identifier.
func (c *Client) CreateEntry(ctx context.Context, name, folderID string, pages []journal.Page) (string, error) {
	req := createEntryRequest{Name: name, Folder: optional(folderID), Pages: pagePayloads(pages)}

	body, err := c.do(ctx, http.MethodPost, entriesEndpoint, req, false)
	if err != nil {
		return "", fmt.Errorf("creating entry %q: %w", name, err)
	}

	return createdID(body, "entry", name)
}

type updateEntryRequest struct {
	Pages []pagePayload `json:"pages"`
}

// UpdateEntry sends the full page set of an entry. The bridge replaces
// the content of pages matched by name and appends the rest.
func (c *Client) UpdateEntry(ctx context.Context, id string, pages []journal.Page) error {
	req := updateEntryRequest{Pages: pagePayloads(pages)}

	if _, err := c.do(ctx, http.MethodPut, entriesEndpoint+"/"+url.PathEscape(id), req, true); err != nil {
		return fmt.Errorf("updating entry %s: %w", id, err)
	}

	return nil
}

func createdID(body []byte, kind, name string) (string, error) {
	id := gjson.GetBytes(body, "_id")
	if id.Type != gjson.String || id.Str == "" {
		return "", fmt.Errorf("creating %s %q: response has no _id: %s", kind, name, sanitizeResponseBody(body))
	}

	return id.Str, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
