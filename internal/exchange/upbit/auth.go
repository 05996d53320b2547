package upbit

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dyike/BreakoutGo/internal/exchange"
)

// queryString renders params the way the exchange hashes them: sorted keys,
// not percent-encoded.
func queryString(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	vals := url.Values{}
	for k, v := range params {
		vals.Set(k, v)
	}
	raw, err := url.QueryUnescape(vals.Encode())
	if err != nil {
		return vals.Encode()
	}
	return raw
}

// authorization builds the bearer token for a private endpoint.
func (c *Client) authorization(params map[string]string) (string, error) {
	if err := c.checkKeys(); err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"access_key": c.accessKey,
		"nonce":      uuid.NewString(),
	}
	if q := queryString(params); q != "" {
		sum := sha512.Sum512([]byte(q))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.secretKey))
	if err != nil {
		return "", fmt.Errorf("%w: sign token: %v", exchange.ErrAuth, err)
	}
	return "Bearer " + signed, nil
}

func (c *Client) checkKeys() error {
	if strings.TrimSpace(c.accessKey) == "" || strings.TrimSpace(c.secretKey) == "" {
		return fmt.Errorf("%w: upbit access/secret key not configured", exchange.ErrAuth)
	}
	return nil
}
