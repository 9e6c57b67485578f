// Package intercept extracts credential-shaped data from requests issued by a
// controlled page and builds the instrumentation injected into it.
package intercept

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

var (
	ErrEmptyBody           = errors.New("empty request body")
	ErrUnsupportedEncoding = errors.New("unsupported body encoding")
)

const maxMultipartMemory = 1 << 20

// Field is one key/value pair found in a request body
type Field struct {
	Key   string
	Value string
}

// ShouldInspect reports whether a request is a write to one of the auth hosts.
// An empty host list matches every host.
func ShouldInspect(method, rawURL string, authHosts []string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH":
	default:
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	if len(authHosts) == 0 {
		return true
	}

	host := strings.ToLower(u.Hostname())
	for _, h := range authHosts {
		h = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "."))
		if h == "" {
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// ParseBody splits a request body into fields according to its declared content type.
// A missing content type is sniffed: JSON if the body looks like an object or array,
// form-encoded otherwise.
func ParseBody(contentType string, body []byte) ([]Field, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = sniff(body)
	}

	switch {
	case mediaType == "application/x-www-form-urlencoded":
		return parseForm(body)
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return parseJSON(body)
	case mediaType == "multipart/form-data":
		return parseMultipart(body, params["boundary"])
	case mediaType == "text/plain":
		// sendBeacon and no-cors fetches often post form or JSON bodies as text/plain
		return ParseBody(sniff(body), body)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, mediaType)
	}
}

func sniff(body []byte) string {
	if body[0] == '{' || body[0] == '[' {
		return "application/json"
	}
	return "application/x-www-form-urlencoded"
}

func parseForm(body []byte) ([]Field, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse form body: %w", err)
	}
	return fromValues(values), nil
}

func parseMultipart(body []byte, boundary string) ([]Field, error) {
	if boundary == "" {
		return nil, errors.New("parse multipart body: missing boundary")
	}
	form, err := multipart.NewReader(bytes.NewReader(body), boundary).ReadForm(maxMultipartMemory)
	if err != nil {
		return nil, fmt.Errorf("parse multipart body: %w", err)
	}
	defer form.RemoveAll()
	return fromValues(form.Value), nil
}

func fromValues(values map[string][]string) []Field {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		for _, v := range values[k] {
			fields = append(fields, Field{Key: k, Value: v})
		}
	}
	return fields
}

func parseJSON(body []byte) ([]Field, error) {
	var doc any
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse json body: %w", err)
	}
	var fields []Field
	walk("", doc, &fields)
	return fields, nil
}

// walk collects scalar leaves; the key of a leaf is its nearest object key
func walk(key string, node any, out *[]Field) {
	switch v := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(k, v[k], out)
		}
	case []any:
		for _, item := range v {
			walk(key, item, out)
		}
	case nil:
	default:
		if key == "" {
			return
		}
		*out = append(*out, Field{Key: key, Value: scalar(v)})
	}
}

func scalar(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(s)
	}
}

// Flatten turns a page-reported form map into fields
func Flatten(data map[string]any) []Field {
	var fields []Field
	walk("", data, &fields)
	return fields
}
