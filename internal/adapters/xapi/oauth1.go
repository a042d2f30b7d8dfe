package xapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Credentials holds the OAuth 1.0a user context keys for one account.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

func (c Credentials) complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// authorizationHeader signs one request per RFC 5849 with HMAC-SHA1. Only
// query and form parameters enter the signature base; JSON and multipart
// bodies stay outside it.
func (c Credentials) authorizationHeader(method, rawURL string, form url.Values, nonce string, issuedAt time.Time) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	oauth := map[string]string{
		"oauth_consumer_key":     c.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(issuedAt.Unix(), 10),
		"oauth_token":            c.AccessToken,
		"oauth_version":          "1.0",
	}

	params := make([][2]string, 0, len(oauth)+8)
	for k, v := range oauth {
		params = append(params, [2]string{percentEncode(k), percentEncode(v)})
	}
	for k, vs := range parsed.Query() {
		for _, v := range vs {
			params = append(params, [2]string{percentEncode(k), percentEncode(v)})
		}
	}
	for k, vs := range form {
		for _, v := range vs {
			params = append(params, [2]string{percentEncode(k), percentEncode(v)})
		}
	}
	sort.Slice(params, func(i, j int) bool {
		if params[i][0] != params[j][0] {
			return params[i][0] < params[j][0]
		}
		return params[i][1] < params[j][1]
	})

	var paramString strings.Builder
	for i, kv := range params {
		if i > 0 {
			paramString.WriteByte('&')
		}
		paramString.WriteString(kv[0])
		paramString.WriteByte('=')
		paramString.WriteString(kv[1])
	}

	baseURL := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(normalizedHost(parsed)) + parsed.EscapedPath()
	base := strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" + percentEncode(paramString.String())

	mac := hmac.New(sha1.New, []byte(percentEncode(c.ConsumerSecret)+"&"+percentEncode(c.AccessSecret)))
	mac.Write([]byte(base))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	oauth["oauth_signature"] = signature
	keys := make([]string, 0, len(oauth))
	for k := range oauth {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var header strings.Builder
	header.WriteString("OAuth ")
	for i, k := range keys {
		if i > 0 {
			header.WriteString(", ")
		}
		header.WriteString(percentEncode(k))
		header.WriteString(`="`)
		header.WriteString(percentEncode(oauth[k]))
		header.WriteString(`"`)
	}
	return header.String(), nil
}

func normalizedHost(u *url.URL) string {
	host := u.Host
	switch u.Scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}
	return host
}

func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// percentEncode applies the RFC 3986 encoding the OAuth signature base
// requires: unreserved characters pass through, everything else becomes
// uppercase %XX.
func percentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9',
			ch == '-', ch == '.', ch == '_', ch == '~':
			b.WriteByte(ch)
		default:
			fmt.Fprintf(&b, "%%%02X", ch)
		}
	}
	return b.String()
}
