package xapi

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestAuthorizationHeaderMatchesKnownSignature(t *testing.T) {
	creds := Credentials{
		ConsumerKey:    "xvz1evFS4wEEPTGEFPHBog",
		ConsumerSecret: "kAcSOqF21Fu85e7zjz7ZN2U4ZRhfV3WpwPAoE3Z7kBw",
		AccessToken:    "370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb",
		AccessSecret:   "LswwdoUaIvS8ltyTt5jkRh4J50vUPVVHtR2YPi5kE",
	}
	form := url.Values{}
	form.Set("status", "Hello Ladies + Gentlemen, a signed OAuth request!")

	header, err := creds.authorizationHeader(
		"POST",
		"https://api.twitter.com/1.1/statuses/update.json?include_entities=true",
		form,
		"kYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg",
		time.Unix(1318622958, 0),
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(header, "OAuth ") {
		t.Fatalf("unexpected header prefix: %q", header)
	}
	if !strings.Contains(header, `oauth_signature="tnnArxj06cWHq44gCs1OSKk%2FjLY%3D"`) {
		t.Fatalf("signature mismatch in header: %q", header)
	}
	if !strings.Contains(header, `oauth_timestamp="1318622958"`) {
		t.Fatalf("timestamp missing in header: %q", header)
	}
}

func TestPercentEncode(t *testing.T) {
	cases := map[string]string{
		"Ladies + Gentlemen": "Ladies%20%2B%20Gentlemen",
		"An encoded string!": "An%20encoded%20string%21",
		"Dogs, Cats & Mice":  "Dogs%2C%20Cats%20%26%20Mice",
		"☃":             "%E2%98%83",
		"safe-._~AZaz09":     "safe-._~AZaz09",
	}
	for in, want := range cases {
		if got := percentEncode(in); got != want {
			t.Fatalf("percentEncode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNonceIsUnique(t *testing.T) {
	a, err := newNonce()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	b, err := newNonce()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct nonces, got %q twice", a)
	}
	if len(a) != 32 {
		t.Fatalf("unexpected nonce length: %d", len(a))
	}
}
