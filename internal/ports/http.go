package ports

import "net/http"

// HTTPDoer is the transport used for API calls. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
