package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Wyydra/rendezvous/internal/core/domain"
	"github.com/Wyydra/rendezvous/internal/core/port"
	"github.com/Wyydra/rendezvous/internal/core/service"
	"github.com/golang-jwt/jwt/v5"
)

// Claims binds a token to a room; the subject becomes the peer id.
type Claims struct {
	Room string `json:"room,omitempty"`
	jwt.RegisteredClaims
}

// JWTHandler authenticates upgrades with an HMAC signed token taken from
// the Authorization header or the "token" query parameter. Every other
// extension point keeps the default behaviour.
type JWTHandler struct {
	service.DefaultHandler
	secret []byte
	issuer string
}

func NewJWTHandler(secret []byte, issuer string) *JWTHandler {
	return &JWTHandler{
		secret: secret,
		issuer: issuer,
	}
}

func (h *JWTHandler) Authenticate(req *port.Request, parsed port.ParsedRequest) (port.AuthResult, error) {
	raw := tokenFrom(req)
	if raw == "" {
		return port.AuthResult{}, domain.NewAuthError("missing token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if h.issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.issuer))
	}
	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(raw, claims, h.key, opts...); err != nil {
		return port.AuthResult{}, domain.NewAuthError("invalid token: " + err.Error())
	}

	// "all" addresses the whole room on the wire and cannot name a peer
	if claims.Subject == domain.BroadcastTarget {
		return port.AuthResult{}, &domain.AuthError{Status: http.StatusBadRequest, Reason: "reserved subject"}
	}

	room := parsed.RoomHint
	if claims.Room != "" {
		if room != "" && room != claims.Room {
			return port.AuthResult{}, &domain.AuthError{Status: http.StatusForbidden, Reason: "token not valid for room"}
		}
		room = claims.Room
	}
	if room == "" {
		return port.AuthResult{}, &domain.AuthError{Status: http.StatusBadRequest, Reason: "missing room"}
	}

	return port.AuthResult{
		Room:        room,
		PeerID:      domain.PeerID(claims.Subject),
		Credentials: claims,
		State:       parsed.State,
	}, nil
}

func (h *JWTHandler) key(t *jwt.Token) (any, error) {
	if len(h.secret) == 0 {
		return nil, errors.New("no signing secret configured")
	}
	return h.secret, nil
}

// Sign mints a token for subject in room. An empty subject leaves the peer
// id to the broker; a zero ttl never expires.
func (h *JWTHandler) Sign(room, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Room: room,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Issuer:   h.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

func tokenFrom(req *port.Request) string {
	if h := req.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return req.Query.Get("token")
}
