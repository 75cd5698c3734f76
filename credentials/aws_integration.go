package credentials

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// defaultAWSRegion is the fallback region when none is specified.
const defaultAWSRegion = "us-west-2"

// BedrockModelMapping maps Claude model names to Bedrock model IDs, so the
// agent config can name models the way the Anthropic API does.
var BedrockModelMapping = map[string]string{
	"claude-3-5-sonnet-20241022": "anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-sonnet-20240620": "anthropic.claude-3-5-sonnet-20240620-v1:0",
	"claude-3-opus-20240229":     "anthropic.claude-3-opus-20240229-v1:0",
	"claude-3-sonnet-20240229":   "anthropic.claude-3-sonnet-20240229-v1:0",
	"claude-3-haiku-20240307":    "anthropic.claude-3-haiku-20240307-v1:0",
	"claude-3-5-haiku-20241022":  "anthropic.claude-3-5-haiku-20241022-v1:0",
}

// BedrockEndpoint returns the Bedrock runtime endpoint URL for a region.
func BedrockEndpoint(region string) string {
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
}

// AWSCredential signs Bedrock invoke requests with AWS SigV4.
type AWSCredential struct {
	cfg    aws.Config
	region string
}

// NewAWSCredential creates an AWS credential using the default credential
// chain: IRSA (IAM Roles for Service Accounts), instance profiles, and
// environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewAWSCredential(ctx context.Context, region string) (*AWSCredential, error) {
	if region == "" {
		region = defaultAWSRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSCredential{cfg: cfg, region: region}, nil
}

// NewAWSCredentialWithRole creates an AWS credential that assumes a role
// before signing, for deployments where Bedrock access lives in another
// account.
func NewAWSCredentialWithRole(ctx context.Context, region, roleARN string) (*AWSCredential, error) {
	c, err := NewAWSCredential(ctx, region)
	if err != nil {
		return nil, err
	}

	c.cfg.Credentials = stscreds.NewAssumeRoleProvider(sts.NewFromConfig(c.cfg), roleARN)
	return c, nil
}

// Apply signs the request using AWS SigV4.
func (c *AWSCredential) Apply(ctx context.Context, req *http.Request) error {
	creds, err := c.cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	s := signer{creds: creds, region: c.region, service: "bedrock", now: time.Now}
	return s.sign(req)
}

// Type returns "aws".
func (c *AWSCredential) Type() string {
	return "aws"
}

const sigv4Algorithm = "AWS4-HMAC-SHA256"

// signer carries everything SigV4 needs beyond the request itself. The clock
// is a field so tests can sign at a fixed instant.
type signer struct {
	creds   aws.Credentials
	region  string
	service string
	now     func() time.Time
}

// sign computes the SigV4 signature over the request and sets the X-Amz-*
// and Authorization headers. The request body is consumed to hash it and
// then replaced.
func (s signer) sign(req *http.Request) error {
	if s.now == nil {
		s.now = time.Now
	}
	t := s.now().UTC()
	amzDate := t.Format("20060102T150405Z")
	day := t.Format("20060102")

	payloadHash, err := hashPayload(req)
	if err != nil {
		return err
	}

	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	if s.creds.SessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", s.creds.SessionToken)
	}

	// The path in the canonical request is percent-encoded per segment.
	// Bedrock model IDs end in a ":0" version suffix, and the colon has to
	// be escaped here or the service rejects the signature.
	path := escapePath(req.URL.Path)
	if path == "" {
		path = "/"
	}

	names, headerBlock := headersToSign(req)
	headerList := strings.Join(names, ";")

	canonical := strings.Join([]string{
		req.Method,
		path,
		req.URL.RawQuery,
		headerBlock,
		headerList,
		payloadHash,
	}, "\n")

	scope := day + "/" + s.region + "/" + s.service + "/aws4_request"
	toSign := strings.Join([]string{
		sigv4Algorithm,
		amzDate,
		scope,
		sha256Hex([]byte(canonical)),
	}, "\n")

	signature := hex.EncodeToString(hmacSum(s.deriveKey(day), toSign))
	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigv4Algorithm, s.creds.AccessKeyID, scope, headerList, signature))

	return nil
}

// deriveKey runs the SigV4 key derivation chain for the given day.
func (s signer) deriveKey(day string) []byte {
	k := hmacSum([]byte("AWS4"+s.creds.SecretAccessKey), day)
	k = hmacSum(k, s.region)
	k = hmacSum(k, s.service)
	return hmacSum(k, "aws4_request")
}

// hashPayload hashes the request body, putting it back afterwards so the
// transport can still send it. A nil body hashes as the empty string.
func hashPayload(req *http.Request) (string, error) {
	if req.Body == nil {
		return sha256Hex(nil), nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return sha256Hex(body), nil
}

// headersToSign picks the headers covered by the signature and renders the
// canonical header block. Every header on the request is signed except
// Authorization and User-Agent; Host is always included, taken from the URL
// when the request does not carry one explicitly.
func headersToSign(req *http.Request) ([]string, string) {
	names := []string{"host"}
	for name := range req.Header {
		switch lower := strings.ToLower(name); lower {
		case "authorization", "user-agent", "host":
		default:
			names = append(names, lower)
		}
	}
	sort.Strings(names)

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	var block strings.Builder
	for _, name := range names {
		block.WriteString(name)
		block.WriteByte(':')
		if name == "host" {
			block.WriteString(host)
		} else {
			block.WriteString(strings.Join(req.Header.Values(name), ","))
		}
		block.WriteByte('\n')
	}
	return names, block.String()
}

// escapePath applies SigV4 URI encoding to each path segment, leaving the
// slashes between them alone.
func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		parts[i] = escapeSegment(part)
	}
	return strings.Join(parts, "/")
}

// escapeSegment percent-encodes everything outside the RFC 3986 unreserved
// set (letters, digits, '-', '_', '.', '~').
func escapeSegment(seg string) string {
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		switch c := seg[i]; {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSum(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}
