package transport

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// ErrMalformedPage is returned when a response body cannot be read as a page at all.
var ErrMalformedPage = errors.New("malformed page")

// DecodeArray decodes the JSON array at path (gjson syntax; empty means the document root)
// one element at a time. Elements that fail to decode are counted in skipped rather than
// failing the page. An invalid document or a missing array is an error.
func DecodeArray[T any](body []byte, path string) (items []T, skipped int, err error) {
	if !gjson.ValidBytes(body) {
		return nil, 0, fmt.Errorf("%w: response is not valid JSON", ErrMalformedPage)
	}

	result := gjson.ParseBytes(body)
	if path != "" {
		result = result.Get(path)
	}
	if !result.IsArray() {
		return nil, 0, fmt.Errorf("%w: no array at %q", ErrMalformedPage, path)
	}

	for _, raw := range result.Array() {
		var item T
		if err := json.Unmarshal([]byte(raw.Raw), &item); err != nil {
			skipped++
			continue
		}
		items = append(items, item)
	}

	return items, skipped, nil
}
