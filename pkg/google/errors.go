package google

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/harrisonrobin/trashtasker/pkg/provider"
	"google.golang.org/api/googleapi"
)

// isGone reports whether err is a 404 or 410 from a Google API.
func isGone(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusNotFound || gErr.Code == http.StatusGone
	}
	return false
}

// classify maps a Google API error onto the provider taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isGone(err) {
		return provider.Wrap(op, fmt.Errorf("%w: %v", provider.ErrNotFound, err))
	}
	return provider.Wrap(op, err)
}
