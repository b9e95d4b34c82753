package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"diary/internal/diary"
)

const (
	DefaultBaseURL = "https://api.github.com"
	defaultTimeout = 30 * time.Second

	// markerPrefix tags an issue body with the merge key that created it.
	markerPrefix = "<!-- diary-merge-key: "
	markerSuffix = " -->"

	findPages = 3
)

// Client talks to the GitHub REST API for one repository. It publishes merged
// journals as issues and stores uploaded images in the repository.
type Client struct {
	BaseURL string
	Token   string
	Owner   string
	Repo    string
	Branch  string
	Label   string

	HTTP   *http.Client
	Logger *log.Logger
}

func New(baseURL, token, owner, repo, branch, label string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if branch == "" {
		branch = "main"
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		Branch:  branch,
		Label:   label,
		HTTP:    &http.Client{Timeout: defaultTimeout},
	}
}

type issue struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
}

// Create opens an issue for doc and returns its html_url. The reserved label
// is added when missing and doc.Key is embedded in the body as an HTML
// comment so FindByKey can recognise the issue later.
func (c *Client) Create(ctx context.Context, doc diary.Document) (string, error) {
	labels := append([]string(nil), doc.Labels...)
	if c.Label != "" && !contains(labels, c.Label) {
		labels = append(labels, c.Label)
	}
	body := doc.Body
	if doc.Key != "" {
		body = body + "\n\n" + markerPrefix + doc.Key + markerSuffix
	}

	payload := map[string]any{
		"title":  doc.Title,
		"body":   body,
		"labels": labels,
	}
	c.logf("github: create issue title=%q", doc.Title)

	var out issue
	if err := c.do(ctx, "create issue", http.MethodPost, c.repoPath("issues"), payload, &out); err != nil {
		return "", err
	}
	c.logf("github: issue created #%d %s", out.Number, out.HTMLURL)
	return out.HTMLURL, nil
}

// FindByKey scans recent issues carrying the reserved label for one created
// with key.
func (c *Client) FindByKey(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	marker := markerPrefix + key + markerSuffix

	for page := 1; page <= findPages; page++ {
		q := url.Values{}
		q.Set("state", "all")
		q.Set("sort", "created")
		q.Set("direction", "desc")
		q.Set("per_page", "100")
		q.Set("page", strconv.Itoa(page))
		if c.Label != "" {
			q.Set("labels", c.Label)
		}

		var issues []issue
		if err := c.do(ctx, "list issues", http.MethodGet, c.repoPath("issues")+"?"+q.Encode(), nil, &issues); err != nil {
			return "", false, err
		}
		for _, is := range issues {
			if strings.Contains(is.Body, marker) {
				return is.HTMLURL, true, nil
			}
		}
		if len(issues) < 100 {
			break
		}
	}
	return "", false, nil
}

// Update replaces the body of the issue ref points at.
func (c *Client) Update(ctx context.Context, ref, body string) error {
	n, err := IssueNumber(ref)
	if err != nil {
		return err
	}
	c.logf("github: update issue #%d body", n)
	return c.do(ctx, "update issue", http.MethodPatch, c.repoPath("issues/"+strconv.Itoa(n)), map[string]any{"body": body}, nil)
}

func (c *Client) Close(ctx context.Context, ref string) error {
	n, err := IssueNumber(ref)
	if err != nil {
		return err
	}
	c.logf("github: close issue #%d", n)
	return c.do(ctx, "close issue", http.MethodPatch, c.repoPath("issues/"+strconv.Itoa(n)), map[string]any{"state": "closed"}, nil)
}

func (c *Client) AddLabels(ctx context.Context, ref string, labels []string) error {
	n, err := IssueNumber(ref)
	if err != nil {
		return err
	}
	c.logf("github: add labels to issue #%d: %v", n, labels)
	return c.do(ctx, "add labels", http.MethodPost, c.repoPath("issues/"+strconv.Itoa(n)+"/labels"), map[string]any{"labels": labels}, nil)
}

// UploadFile writes content to path on the configured branch, replacing the
// file if it already exists, and returns the file's html_url.
func (c *Client) UploadFile(ctx context.Context, path string, content []byte, message string) (string, error) {
	path = strings.TrimLeft(path, "/")
	endpoint := c.repoPath("contents/" + path)

	var existing struct {
		SHA string `json:"sha"`
	}
	err := c.do(ctx, "get file", http.MethodGet, endpoint+"?ref="+url.QueryEscape(c.Branch), nil, &existing)
	if err != nil {
		var ext *diary.ExternalServiceError
		if !errors.As(err, &ext) || ext.StatusCode != http.StatusNotFound {
			return "", err
		}
	}
	if existing.SHA != "" {
		c.logf("github: %s exists, overwriting", path)
	}

	if message == "" {
		message = "Upload " + path
	}
	payload := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  c.Branch,
	}
	if existing.SHA != "" {
		payload["sha"] = existing.SHA
	}

	var out struct {
		Content struct {
			HTMLURL string `json:"html_url"`
		} `json:"content"`
	}
	c.logf("github: upload %s (%d bytes)", path, len(content))
	if err := c.do(ctx, "upload file", http.MethodPut, endpoint, payload, &out); err != nil {
		return "", err
	}
	return out.Content.HTMLURL, nil
}

// IssueNumber extracts the issue number from an issue html_url.
func IssueNumber(ref string) (int, error) {
	ref = strings.TrimRight(ref, "/")
	i := strings.LastIndex(ref, "/")
	n, err := strconv.Atoi(ref[i+1:])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("not an issue reference: %q", ref)
	}
	return n, nil
}

func (c *Client) repoPath(p string) string {
	return fmt.Sprintf("%s/repos/%s/%s/%s", c.BaseURL, c.Owner, c.Repo, p)
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &diary.ExternalServiceError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := resp.Status
		var apiErr struct {
			Message string `json:"message"`
		}
		if b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); len(b) > 0 {
			if json.Unmarshal(b, &apiErr) == nil && apiErr.Message != "" {
				msg = apiErr.Message
			}
		}
		c.logf("github: %s failed: status=%d %s", op, resp.StatusCode, msg)
		return &diary.ExternalServiceError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &diary.ExternalServiceError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
