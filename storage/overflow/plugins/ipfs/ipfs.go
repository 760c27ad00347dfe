// Package ipfs stores blobs through the HTTP RPC API of an IPFS node
// or pinning service. The endpoint is the API base such as
// "https://ipfs.example.com/api/v0/". References are content
// identifiers so identical blobs share a reference.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrife/tenantkv/storage/overflow"
)

// DriverName is the name under which the plugin is registered
const DriverName = "ipfs"

// Plugins lists the plugins provided by this package
func Plugins() []overflow.Plugin {
	return []overflow.Plugin{&IPFSPlugin{}}
}

// IPFSPlugin creates IPFS content stores
type IPFSPlugin struct {
}

// Name implements overflow.Plugin.Name
func (plugin *IPFSPlugin) Name() string {
	return DriverName
}

// NewStore implements overflow.Plugin.NewStore
func (plugin *IPFSPlugin) NewStore(options overflow.Options) (overflow.Store, error) {
	return New(options)
}

var _ overflow.Store = (*IPFSStore)(nil)

// IPFSStore implements overflow.Store against the IPFS RPC API
type IPFSStore struct {
	endpoint  *url.URL
	accessKey string
	secretKey string
	client    *http.Client
}

// New creates an IPFSStore. Requests are authenticated with HTTP
// basic auth when options.AccessKey is set.
func New(options overflow.Options) (*IPFSStore, error) {
	endpoint := options.Endpoint

	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	parsed, err := url.Parse(endpoint)

	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %s", options.Endpoint, err)
	}

	timeout := options.Timeout

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &IPFSStore{
		endpoint:  parsed,
		accessKey: options.AccessKey,
		secretKey: options.SecretKey,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

type addResponse struct {
	Name string
	Hash string
	Size string
}

// Add implements overflow.Store.Add by calling "add"
func (store *IPFSStore) Add(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "blob")

	if err != nil {
		return "", err
	}

	if _, err := part.Write(data); err != nil {
		return "", err
	}

	if err := form.Close(); err != nil {
		return "", err
	}

	resp, err := store.call(ctx, "add", "", form.FormDataContentType(), &body)

	if err != nil {
		return "", err
	}

	defer resp.Close()

	var added addResponse

	if err := json.NewDecoder(resp).Decode(&added); err != nil {
		return "", fmt.Errorf("%w: could not decode add response: %s", overflow.ErrUnavailable, err)
	}

	if added.Hash == "" {
		return "", fmt.Errorf("%w: add response has no hash", overflow.ErrUnavailable)
	}

	return added.Hash, nil
}

// Get implements overflow.Store.Get by calling "cat"
func (store *IPFSStore) Get(ctx context.Context, reference string) ([]byte, error) {
	resp, err := store.call(ctx, "cat", reference, "", nil)

	if err != nil {
		return nil, err
	}

	defer resp.Close()

	data, err := ioutil.ReadAll(resp)

	if err != nil {
		return nil, fmt.Errorf("%w: %s", overflow.ErrUnavailable, err)
	}

	return data, nil
}

// Delete implements overflow.Store.Delete by unpinning the blob
func (store *IPFSStore) Delete(ctx context.Context, reference string) error {
	resp, err := store.call(ctx, "pin/rm", reference, "", nil)

	if err != nil {
		return err
	}

	return resp.Close()
}

// Close implements overflow.Store.Close
func (store *IPFSStore) Close() error {
	store.client.CloseIdleConnections()

	return nil
}

// call POSTs to the named RPC command and returns the response
// body of a successful call
func (store *IPFSStore) call(ctx context.Context, command string, arg string, contentType string, body io.Reader) (io.ReadCloser, error) {
	target := store.endpoint.ResolveReference(&url.URL{Path: command})

	if arg != "" {
		target.RawQuery = url.Values{"arg": []string{arg}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), body)

	if err != nil {
		return nil, err
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if store.accessKey != "" {
		req.SetBasicAuth(store.accessKey, store.secretKey)
	}

	resp, err := store.client.Do(req)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w: %s", overflow.ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		message, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()

		return nil, fmt.Errorf("%w: %s returned %d: %s", overflow.ErrUnavailable, command, resp.StatusCode, bytes.TrimSpace(message))
	}

	return resp.Body, nil
}
