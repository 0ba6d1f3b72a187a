package session

import "strings"

// QueryParam is one key=value pair of a request query string.
type QueryParam struct {
	Key   string
	Value string
}

// Request is a fully assembled GET request. Build it with BuildRequest and
// do not modify it afterwards.
type Request struct {
	BasePath string
	Params   []QueryParam
}

// BuildRequest joins base and endpoint and attaches params in order.
// Values are not escaped; callers pass transport-safe strings.
func BuildRequest(base, endpoint string, params ...QueryParam) Request {
	ps := make([]QueryParam, len(params))
	copy(ps, params)
	return Request{
		BasePath: base + endpoint,
		Params:   ps,
	}
}

// URL renders the request as base/endpoint?k=v&k=v.
func (r Request) URL() string {
	if len(r.Params) == 0 {
		return r.BasePath
	}

	var b strings.Builder
	b.WriteString(r.BasePath)
	b.WriteByte('?')
	for i, p := range r.Params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}
