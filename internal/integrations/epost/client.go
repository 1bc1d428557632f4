package epost

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/pkg/errors"

	"github.com/sellerbay/parcelgate/config"
)

const callTimeout = 30 * time.Second

// Client speaks the carrier's legacy HTTP/XML protocol: GET with either an
// encrypted regData blob or plain query fields, XML body back.
type Client struct {
	baseURL string
	apiKey  string
	codec   *Codec
	httpc   *http.Client
}

func New(baseURL string, creds config.Credentials) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("epost base url is empty")
	}
	codec, err := NewCodec(creds.CipherKey)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  creds.APIKey,
		codec:   codec,
		httpc: &http.Client{
			Timeout: callTimeout,
		},
	}, nil
}

// Call issues one carrier request and returns the raw XML body, or a typed
// error. The testYn flag is appended only when it is exactly "Y"; it never
// enters the encrypted payload.
func (c *Client) Call(ctx context.Context, endpoint string, fields *Fields, encrypted bool, testYn string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse base url")
	}
	u.Path = path.Join(u.Path, endpoint)

	q := u.Query()
	q.Set("key", c.apiKey)
	if encrypted {
		blob, err := c.codec.Encode(fields)
		if err != nil {
			return "", err
		}
		q.Set("regData", blob)
	} else {
		// Unencrypted endpoints take the same validation path; only the
		// transport differs.
		if _, err := Serialize(fields); err != nil {
			return "", err
		}
		fields.Each(func(k, v string) {
			q.Set(k, v)
		})
	}
	if testYn == "Y" {
		q.Set(testFlagField, "Y")
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return "", &TimeoutError{Endpoint: endpoint}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &TimeoutError{Endpoint: endpoint}
		}
		return "", &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Endpoint: endpoint, Err: err}
	}
	if resp.StatusCode/100 != 2 {
		return "", &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	if apiErr := ClassifyError(string(body)); apiErr != nil {
		return "", apiErr
	}
	return string(body), nil
}

// errorMatcher probes one legacy error dialect. Matchers run in priority
// order, most specific first; the first hit wins. The order mirrors which
// dialect each upstream endpoint actually speaks, so keep it stable.
type errorMatcher struct {
	name  string
	match func(body string) (code, message string, ok bool)
}

var errorMatchers = []errorMatcher{
	{
		name: "lowercase error tags",
		match: func(body string) (string, string, bool) {
			code, ok := ExtractValue(body, "error_code")
			if !ok {
				return "", "", false
			}
			msg, _ := ExtractValue(body, "error_message")
			return code, msg, true
		},
	},
	{
		name: "uppercase error tags",
		match: func(body string) (string, string, bool) {
			code, ok := ExtractValue(body, "ERROR_CODE")
			if !ok {
				return "", "", false
			}
			msg, _ := ExtractValue(body, "ERROR_MESSAGE")
			return code, msg, true
		},
	},
	{
		name: "camelCase err tags",
		match: func(body string) (string, string, bool) {
			code, ok := ExtractValue(body, "errCode")
			if !ok {
				return "", "", false
			}
			msg, _ := ExtractValue(body, "errMsg")
			return code, msg, true
		},
	},
	{
		name: "result sentinel",
		match: func(body string) (string, string, bool) {
			v, ok := ExtractValue(body, "result")
			if !ok {
				v, ok = ExtractValue(body, "success")
			}
			if !ok || v != "N" {
				return "", "", false
			}
			code, _ := ExtractValue(body, "code")
			if code == "" {
				code = "UNKNOWN"
			}
			msg, ok := ExtractValue(body, "message")
			if !ok {
				msg, _ = ExtractValue(body, "msg")
			}
			return code, msg, true
		},
	},
}

// ClassifyError scans a response body through the dialect matchers and
// returns the carrier error if any matcher hits, nil otherwise.
func ClassifyError(body string) error {
	for _, m := range errorMatchers {
		code, msg, ok := m.match(body)
		if !ok {
			continue
		}
		apiErr := APIError{Code: code, Message: msg}
		if code == CodeInvalidCustomerNo {
			return &InvalidCustomerNoError{APIError: apiErr}
		}
		return &apiErr
	}
	return nil
}
