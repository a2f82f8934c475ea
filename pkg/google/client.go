package google

import (
	"context"
	"errors"

	"github.com/harrisonrobin/trashtasker/pkg/auth"
	"github.com/harrisonrobin/trashtasker/pkg/provider"
	"google.golang.org/api/option"
)

var errNoCredential = errors.New("no credential")

// TasksFactory returns a provider.Factory that authenticates every Tasks
// client with the caller's bearer credential. Extra options (endpoint, HTTP
// client) are appended.
func TasksFactory(extra ...option.ClientOption) provider.Factory {
	return func(ctx context.Context, credential string) (provider.Provider, error) {
		if credential == "" {
			return nil, provider.Wrap("authenticate", errNoCredential)
		}
		opts := append([]option.ClientOption{auth.BearerOption(credential)}, extra...)
		return NewTasksClientWithOptions(ctx, opts...)
	}
}

// CalendarFactory returns a constructor for calendar mirrors bound to the
// named calendar, authenticated with the caller's bearer credential.
func CalendarFactory(calendarName string, extra ...option.ClientOption) func(ctx context.Context, credential string) (*CalendarClient, error) {
	return func(ctx context.Context, credential string) (*CalendarClient, error) {
		if credential == "" {
			return nil, provider.Wrap("authenticate", errNoCredential)
		}
		opts := append([]option.ClientOption{auth.BearerOption(credential)}, extra...)
		return NewCalendarClientByName(ctx, calendarName, opts...)
	}
}
