// Package s3blob stores snippet blobs in S3-compatible object storage.
//
// The client is a thin layer over net/http with AWS Signature V4 signing:
// the three calls this service needs (PUT, GET, DELETE on a single key)
// don't justify pulling in a full AWS SDK, and staying on net/http keeps
// the backend usable against MinIO and other S3 clones by just pointing
// the endpoint elsewhere.
package s3blob

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/codether/codether/internal/blob"
)

// Config describes an S3-compatible bucket.
type Config struct {
	Endpoint  string // e.g. "https://s3.eu-west-1.amazonaws.com" or a MinIO URL
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Client    *http.Client // optional; http.DefaultClient when nil
}

// Store is an S3-backed blob.Store using path-style object URLs
// (endpoint/bucket/key).
type Store struct {
	client  *http.Client
	baseURL string
	signer  Signer
}

var _ blob.Store = (*Store)(nil)

// Signer signs outgoing requests. Split out so tests can use a no-op
// signer against a local fake endpoint.
type Signer interface {
	Sign(req *http.Request, payloadHash string) error
}

// New builds a Store with SigV4 signing.
func New(cfg Config) (*Store, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: access key, secret key, and region are required")
	}
	return NewWithSigner(cfg, &sigV4{
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		region:    cfg.Region,
	})
}

// NewWithSigner builds a Store around an explicit signer.
func NewWithSigner(cfg Config, signer Signer) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: endpoint and bucket are required")
	}
	bucket := strings.Trim(cfg.Bucket, "/")
	if bucket == "" {
		return nil, fmt.Errorf("s3blob: invalid bucket name")
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Store{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.Endpoint, "/") + "/" + bucket,
		signer:  signer,
	}, nil
}

// Upload stores data under a fresh key and returns the key.
func (s *Store) Upload(ctx context.Context, extHint string, data []byte) (string, error) {
	key := blob.NewKey(extHint)

	digest := sha256.Sum256(data)
	payloadHash := hex.EncodeToString(digest[:])

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(key), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("s3blob: building put request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))
	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("Host", req.URL.Host)
	if err := s.signer.Sign(req, payloadHash); err != nil {
		return "", fmt.Errorf("s3blob: signing put: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("s3blob: put %s: %s", key, responseError(resp))
	}
	return key, nil
}

// Fetch returns the bytes stored under key.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("s3blob: building get request: %w", err)
	}
	payloadHash := emptyPayloadHash()
	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("Host", req.URL.Host)
	if err := s.signer.Sign(req, payloadHash); err != nil {
		return nil, fmt.Errorf("s3blob: signing get: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("s3blob: get %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("s3blob: get %s: %w", key, blob.ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("s3blob: get %s: %s", key, responseError(resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: reading %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the object stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(key), nil)
	if err != nil {
		return fmt.Errorf("s3blob: building delete request: %w", err)
	}
	payloadHash := emptyPayloadHash()
	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("Host", req.URL.Host)
	if err := s.signer.Sign(req, payloadHash); err != nil {
		return fmt.Errorf("s3blob: signing delete: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("s3blob: delete %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("s3blob: delete %s: %w", key, blob.ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("s3blob: delete %s: %s", key, responseError(resp))
	}
	return nil
}

func (s *Store) objectURL(key string) string {
	return s.baseURL + "/" + url.PathEscape(key)
}

func responseError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
}

func emptyPayloadHash() string {
	sum := sha256.Sum256(nil)
	return hex.EncodeToString(sum[:])
}

// sigV4 implements AWS Signature Version 4 for the s3 service.
type sigV4 struct {
	accessKey string
	secretKey string
	region    string
	now       func() time.Time // test hook
}

func (s *sigV4) Sign(req *http.Request, payloadHash string) error {
	clock := s.now
	if clock == nil {
		clock = time.Now
	}
	t := clock().UTC()
	amzDate := t.Format("20060102T150405Z")
	dateStamp := t.Format("20060102")
	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("host", req.URL.Host)
	if payloadHash == "" {
		payloadHash = emptyPayloadHash()
	}

	canonicalHeaders, signedHeaders := canonicalHeaderStrings(req.Header)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQueryString(req.URL),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")
	hashedRequest := sha256.Sum256([]byte(canonicalRequest))

	credentialScope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, s.region)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		hex.EncodeToString(hashedRequest[:]),
	}, "\n")

	signature := hmacSHA256Hex(s.deriveKey(dateStamp), stringToSign)
	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		s.accessKey, credentialScope, signedHeaders, signature))
	return nil
}

func (s *sigV4) deriveKey(date string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+s.secretKey), date)
	kRegion := hmacSHA256(kDate, s.region)
	kService := hmacSHA256(kRegion, "s3")
	return hmacSHA256(kService, "aws4_request")
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func hmacSHA256Hex(key []byte, data string) string {
	return hex.EncodeToString(hmacSHA256(key, data))
}

func canonicalURI(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func canonicalQueryString(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	values, _ := url.ParseQuery(u.RawQuery)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, fmt.Sprintf("%s=%s", url.QueryEscape(k), url.QueryEscape(v)))
		}
	}
	return strings.Join(parts, "&")
}

func canonicalHeaderStrings(h http.Header) (string, string) {
	keys := make([]string, 0, len(h))
	lower := make(map[string][]string, len(h))
	for k, v := range h {
		lk := strings.ToLower(k)
		if _, seen := lower[lk]; !seen {
			keys = append(keys, lk)
		}
		lower[lk] = append(lower[lk], v...)
	}
	sort.Strings(keys)
	var canonical, signed []string
	for _, k := range keys {
		values := append([]string(nil), lower[k]...)
		sort.Strings(values)
		canonical = append(canonical, fmt.Sprintf("%s:%s", k, strings.TrimSpace(strings.Join(values, ","))))
		signed = append(signed, k)
	}
	return strings.Join(canonical, "\n") + "\n", strings.Join(signed, ";")
}
