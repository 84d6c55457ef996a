package middleware

import (
	"net/http"
	"strings"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
)

// Identity headers set by the gateway after it has verified a credential.
const (
	HeaderUserID          = "X-User-ID"
	HeaderUserEmail       = "X-User-Email"
	HeaderUserRoles       = "X-User-Roles"
	HeaderUserPermissions = "X-User-Permissions"
)

var identityHeaders = []string{HeaderUserID, HeaderUserEmail, HeaderUserRoles, HeaderUserPermissions}

// TrustedUpstream is the capability to accept a pre-resolved identity from
// headers. Only peers inside the allowlist may exercise it.
type TrustedUpstream struct {
	peers *CIDRSet
}

// NewTrustedUpstream builds a TrustedUpstream for the given peer networks.
// An empty list yields nil, which disables header identity entirely.
func NewTrustedUpstream(cidrs []string) (*TrustedUpstream, error) {
	peers, err := ParseCIDRs(cidrs)
	if err != nil {
		return nil, err
	}
	if peers.Empty() {
		return nil, nil
	}
	return &TrustedUpstream{peers: peers}, nil
}

// Trusts reports whether r arrived directly from a trusted peer.
func (t *TrustedUpstream) Trusts(r *http.Request) bool {
	return t != nil && t.peers.ContainsRemote(r)
}

// Principal reads the identity headers of r. It returns false when the peer
// is untrusted or no principal id is present.
func (t *TrustedUpstream) Principal(r *http.Request) (*authz.Principal, bool) {
	if !t.Trusts(r) {
		return nil, false
	}
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return nil, false
	}
	return &authz.Principal{
		ID:          id,
		Email:       r.Header.Get(HeaderUserEmail),
		Roles:       splitList(r.Header.Get(HeaderUserRoles)),
		Permissions: splitList(r.Header.Get(HeaderUserPermissions)),
	}, true
}

// StripIdentityHeaders removes identity headers so a client cannot forge them.
func StripIdentityHeaders(h http.Header) {
	for _, name := range identityHeaders {
		h.Del(name)
	}
}

// SetIdentityHeaders writes p into h, replacing any previous values.
func SetIdentityHeaders(h http.Header, p *authz.Principal) {
	StripIdentityHeaders(h)
	h.Set(HeaderUserID, p.ID)
	if p.Email != "" {
		h.Set(HeaderUserEmail, p.Email)
	}
	h.Set(HeaderUserRoles, strings.Join(p.Roles, ","))
	h.Set(HeaderUserPermissions, strings.Join(p.Permissions, ","))
}

func splitList(v string) []string {
	out := []string{}
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
