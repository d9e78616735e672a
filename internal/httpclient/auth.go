package httpclient

import "net/http"

// Authenticator applies credentials to an outbound request. Resolution of
// any ${NAME}/$NAME secret reference happens at call time (spec.md Design
// Notes, environment-variable resolution), so rotated secrets take effect
// without restarting the collector.
type Authenticator interface {
	Apply(req *http.Request)
}

// NoneAuth applies no credentials.
type NoneAuth struct{}

func (NoneAuth) Apply(*http.Request) {}

// APIKeyAuth attaches an API key as a header, e.g. "X-API-Key: <key>".
type APIKeyAuth struct {
	HeaderName string
	Key        string
	Prefix     string
}

func (a APIKeyAuth) Apply(req *http.Request) {
	name := a.HeaderName
	if name == "" {
		name = "X-API-Key"
	}
	req.Header.Set(name, a.Prefix+a.Key)
}

// BearerAuth attaches an Authorization: Bearer <token> header.
type BearerAuth struct {
	Token string
}

func (a BearerAuth) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.Token)
}

// CustomAuth allows a caller-supplied function to mutate the request.
type CustomAuth struct {
	Fn func(req *http.Request)
}

func (a CustomAuth) Apply(req *http.Request) {
	if a.Fn != nil {
		a.Fn(req)
	}
}
