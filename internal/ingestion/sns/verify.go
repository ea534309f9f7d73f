package sns

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/atlas-ingest/internal/platform/apierr"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
)

// DefaultCertHostPattern matches the relay's regional signing-certificate hosts.
const DefaultCertHostPattern = `^sns\.[a-z0-9-]+\.amazonaws\.com(\.cn)?$`

const maxCertBytes = 64 << 10

// SignatureVerifier checks that an envelope was signed by the relay.
type SignatureVerifier interface {
	Verify(ctx context.Context, env *Envelope) error
}

// NopVerifier accepts every envelope. Only for local development.
type NopVerifier struct{}

func (NopVerifier) Verify(context.Context, *Envelope) error { return nil }

// CertVerifier verifies RSA signatures against the signing certificate named in the
// envelope. Certificates are cached per URL for the process lifetime.
type CertVerifier struct {
	log         *logger.Logger
	client      *http.Client
	hostPattern *regexp.Regexp

	mu      sync.RWMutex
	certs   map[string]*x509.Certificate
	loading singleflight.Group
}

func NewCertVerifier(log *logger.Logger, client *http.Client, hostPattern string) (*CertVerifier, error) {
	if hostPattern == "" {
		hostPattern = DefaultCertHostPattern
	}
	re, err := regexp.Compile(hostPattern)
	if err != nil {
		return nil, fmt.Errorf("compile cert host pattern: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CertVerifier{
		log:         log.With("component", "SNSCertVerifier"),
		client:      client,
		hostPattern: re,
		certs:       map[string]*x509.Certificate{},
	}, nil
}

func (v *CertVerifier) Verify(ctx context.Context, env *Envelope) error {
	if env == nil {
		return signatureError("missing envelope")
	}
	var hash crypto.Hash
	switch env.SignatureVersion {
	case "1":
		hash = crypto.SHA1
	case "2":
		hash = crypto.SHA256
	default:
		return signatureError("unsupported signature version %q", env.SignatureVersion)
	}
	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return signatureError("signature is not base64: %v", err)
	}
	cert, err := v.certificate(ctx, env.SigningCertURL)
	if err != nil {
		return err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return signatureError("signing certificate does not carry an RSA key")
	}
	if err := rsa.VerifyPKCS1v15(pub, hash, digest(hash, env.StringToSign()), sig); err != nil {
		return signatureError("signature mismatch")
	}
	return nil
}

func digest(hash crypto.Hash, s string) []byte {
	if hash == crypto.SHA1 {
		sum := sha1.Sum([]byte(s))
		return sum[:]
	}
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func (v *CertVerifier) certificate(ctx context.Context, rawURL string) (*x509.Certificate, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" || !v.hostPattern.MatchString(u.Hostname()) {
		return nil, signatureError("untrusted signing certificate URL %q", rawURL)
	}

	v.mu.RLock()
	cert := v.certs[rawURL]
	v.mu.RUnlock()
	if cert != nil {
		return cert, nil
	}

	// Concurrent first deliveries share one fetch per URL.
	res, err, _ := v.loading.Do(rawURL, func() (interface{}, error) {
		c, err := v.fetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.certs[rawURL] = c
		v.mu.Unlock()
		return c, nil
	})
	if err != nil {
		v.log.Warn("Fetching SNS signing certificate failed", "url", rawURL, "error", err)
		return nil, signatureError("could not load signing certificate: %v", err)
	}
	return res.(*x509.Certificate), nil
}

func (v *CertVerifier) fetch(ctx context.Context, rawURL string) (*x509.Certificate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCertBytes))
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(body)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no PEM certificate in response")
	}
	return x509.ParseCertificate(block.Bytes)
}

func signatureError(format string, args ...any) error {
	return apierr.Unauthorized("invalid_signature", "SNS signature verification failed: "+format, args...)
}
