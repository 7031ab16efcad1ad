// Package dropbox implements remote.Client on the Dropbox files API.
//
// Every path is rooted at "/" in the app folder. Uploads above the
// single-request ceiling go through upload sessions, so Client also
// satisfies remote.SessionClient.
package dropbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"

	"github.com/flashbackbot/filestore/internal/remote"
	"github.com/flashbackbot/filestore/internal/storage"
)

// FilesAPI is the subset of files.Client used here. files.New returns a
// value that satisfies it.
type FilesAPI interface {
	Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error)
	Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error)
	UploadSessionStart(arg *files.UploadSessionStartArg, content io.Reader) (*files.UploadSessionStartResult, error)
	UploadSessionAppendV2(arg *files.UploadSessionAppendArg, content io.Reader) error
	UploadSessionFinish(arg *files.UploadSessionFinishArg, content io.Reader) (*files.FileMetadata, error)
	DeleteV2(arg *files.DeleteArg) (*files.DeleteResult, error)
	GetMetadata(arg *files.GetMetadataArg) (files.IsMetadata, error)
	CreateFolderV2(arg *files.CreateFolderArg) (*files.CreateFolderResult, error)
	ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error)
	ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error)
}

// Factory builds a FilesAPI for an access token.
type Factory func(token string) FilesAPI

// NewFilesAPI is the production Factory.
func NewFilesAPI(token string) FilesAPI {
	return files.New(dropbox.Config{Token: token, LogLevel: dropbox.LogOff})
}

// Client talks to Dropbox with a token from a remote.TokenSource and
// rebuilds the SDK client whenever the token changes.
type Client struct {
	tokens  remote.TokenSource
	factory Factory

	mu    sync.Mutex
	token string
	api   FilesAPI
}

// New creates a Client. A nil factory uses NewFilesAPI.
func New(tokens remote.TokenSource, factory Factory) *Client {
	if factory == nil {
		factory = NewFilesAPI
	}
	return &Client{tokens: tokens, factory: factory}
}

func (c *Client) Name() string { return "dropbox" }

func (c *Client) connect(ctx context.Context) (FilesAPI, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil || tok != c.token {
		c.api = c.factory(tok)
		c.token = tok
	}
	return c.api, nil
}

// Token exposes the current token so the adapter can serve Storage.Token.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	api, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	_, body, err := api.Download(files.NewDownloadArg(dbxPath(path)))
	if err != nil {
		return nil, classify(err, false)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, classify(err, false)
	}
	return data, nil
}

func (c *Client) Put(ctx context.Context, path string, data []byte, mode remote.PutMode) error {
	api, err := c.connect(ctx)
	if err != nil {
		return err
	}
	arg := files.NewUploadArg(dbxPath(path))
	arg.Mode = writeMode(mode)
	if _, err := api.Upload(arg, bytes.NewReader(data)); err != nil {
		return classify(err, true)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, path string) error {
	api, err := c.connect(ctx)
	if err != nil {
		return err
	}
	if _, err := api.DeleteV2(files.NewDeleteArg(dbxPath(path))); err != nil {
		return classify(err, false)
	}
	return nil
}

func (c *Client) Stat(ctx context.Context, path string) (int64, error) {
	api, err := c.connect(ctx)
	if err != nil {
		return 0, err
	}
	md, err := api.GetMetadata(files.NewGetMetadataArg(dbxPath(path)))
	if err != nil {
		return 0, classify(err, false)
	}
	if f, ok := md.(*files.FileMetadata); ok {
		return int64(f.Size), nil
	}
	return 0, nil
}

func (c *Client) Mkdir(ctx context.Context, path string) error {
	api, err := c.connect(ctx)
	if err != nil {
		return err
	}
	if _, err := api.CreateFolderV2(files.NewCreateFolderArg(dbxPath(path))); err != nil {
		return classify(err, false)
	}
	return nil
}

func (c *Client) StartSession(ctx context.Context, chunk []byte) (string, error) {
	api, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	res, err := api.UploadSessionStart(files.NewUploadSessionStartArg(), bytes.NewReader(chunk))
	if err != nil {
		return "", classify(err, true)
	}
	return res.SessionId, nil
}

func (c *Client) AppendSession(ctx context.Context, cur remote.Cursor, chunk []byte) error {
	api, err := c.connect(ctx)
	if err != nil {
		return err
	}
	arg := files.NewUploadSessionAppendArg(files.NewUploadSessionCursor(cur.SessionID, cur.Offset))
	if err := api.UploadSessionAppendV2(arg, bytes.NewReader(chunk)); err != nil {
		return classify(err, true)
	}
	return nil
}

func (c *Client) FinishSession(ctx context.Context, cur remote.Cursor, path string, mode remote.PutMode) error {
	api, err := c.connect(ctx)
	if err != nil {
		return err
	}
	commit := files.NewCommitInfo(dbxPath(path))
	commit.Mode = writeMode(mode)
	arg := files.NewUploadSessionFinishArg(files.NewUploadSessionCursor(cur.SessionID, cur.Offset), commit)
	if _, err := api.UploadSessionFinish(arg, bytes.NewReader(nil)); err != nil {
		return classify(err, true)
	}
	return nil
}

// List walks every file under prefix, following list cursors.
func (c *Client) List(ctx context.Context, prefix string) iter.Seq2[remote.ObjectInfo, error] {
	return func(yield func(remote.ObjectInfo, error) bool) {
		api, err := c.connect(ctx)
		if err != nil {
			yield(remote.ObjectInfo{}, err)
			return
		}
		root := dbxPath(prefix)
		if root == "/" {
			root = ""
		}
		arg := files.NewListFolderArg(root)
		arg.Recursive = true
		res, err := api.ListFolder(arg)
		for {
			if err != nil {
				yield(remote.ObjectInfo{}, classify(err, false))
				return
			}
			for _, e := range res.Entries {
				f, ok := e.(*files.FileMetadata)
				if !ok {
					continue
				}
				info := remote.ObjectInfo{
					Path:    strings.TrimPrefix(f.PathDisplay, "/"),
					Size:    int64(f.Size),
					ModTime: f.ServerModified,
				}
				if !yield(info, nil) {
					return
				}
			}
			if !res.HasMore {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(remote.ObjectInfo{}, err)
				return
			}
			res, err = api.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		}
	}
}

func dbxPath(p string) string {
	return "/" + strings.TrimPrefix(p, "/")
}

func writeMode(m remote.PutMode) *files.WriteMode {
	tag := files.WriteModeOverwrite
	if m == remote.PutCreate {
		tag = files.WriteModeAdd
	}
	return &files.WriteMode{Tagged: dropbox.Tagged{Tag: tag}}
}

// classify maps SDK errors onto the storage taxonomy. Dropbox reports
// endpoint errors as tagged summaries such as "path/not_found/..".
func classify(err error, upload bool) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if (errors.As(err, &ne) && ne.Timeout()) || errors.Is(err, os.ErrDeadlineExceeded) ||
		strings.Contains(err.Error(), "timed out") {
		if upload {
			return fmt.Errorf("%w: %v", storage.ErrUploadTimeout, err)
		}
		return fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not_found"):
		return fmt.Errorf("%w: %v", storage.ErrNotFound, err)
	case strings.Contains(msg, "path/conflict"):
		return fmt.Errorf("%w: %v", storage.ErrAlreadyExists, err)
	case strings.Contains(msg, "expired_access_token"),
		strings.Contains(msg, "invalid_access_token"):
		return fmt.Errorf("%w: %v", storage.ErrCredential, err)
	case strings.Contains(msg, "too_many_requests"),
		strings.Contains(msg, "too_many_write_operations"),
		strings.Contains(msg, "internal_error"):
		return fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	return err
}

var (
	_ remote.Client        = (*Client)(nil)
	_ remote.SessionClient = (*Client)(nil)
	_ remote.TokenSource   = (*Client)(nil)
)
