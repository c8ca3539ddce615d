package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "imagerelay_session"

const sessionIssuer = "imagerelay-web"

// SessionClaims identify one UI session. Sub is the server-issued session id.
type SessionClaims struct {
	Sub    string `json:"sub"`
	Exp    int64  `json:"exp"`
	Issuer string `json:"iss"`
}

type sessionKey string

const (
	sessionIDKey sessionKey = "session_id"
)

func SignSessionToken(secret string, claims SessionClaims) (string, error) {
	if secret == "" {
		return "", errors.New("session secret is required")
	}
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	headerEnc := base64.RawURLEncoding.EncodeToString(headerJSON)
	payloadEnc := base64.RawURLEncoding.EncodeToString(payloadJSON)
	data := headerEnc + "." + payloadEnc
	return data + "." + hmacSign(secret, data), nil
}

func hmacSign(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func VerifySessionToken(secret, token string) (*SessionClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("invalid token")
	}
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, err
	}
	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, err
	}
	if header.Alg != "HS256" || header.Typ != "JWT" {
		return nil, errors.New("unsupported token header")
	}
	expected := hmacSign(secret, parts[0]+"."+parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return nil, errors.New("invalid signature")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, err
	}
	var claims SessionClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, err
	}
	if claims.Issuer != sessionIssuer || strings.TrimSpace(claims.Sub) == "" {
		return nil, errors.New("invalid claims")
	}
	if claims.Exp != 0 && time.Now().Unix() > claims.Exp {
		return nil, errors.New("token expired")
	}
	return &claims, nil
}

// Session resolves the session id from the signed cookie, issuing a new one
// when the cookie is missing, forged or expired. The cookie is re-signed on
// every request so idle expiry slides.
func Session(secret string, ttl time.Duration, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := ""
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				if claims, err := VerifySessionToken(secret, cookie.Value); err == nil {
					sessionID = claims.Sub
				}
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			expires := time.Now().Add(ttl)
			token, err := SignSessionToken(secret, SessionClaims{Sub: sessionID, Exp: expires.Unix(), Issuer: sessionIssuer})
			if err != nil {
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    token,
				Path:     "/",
				Expires:  expires,
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(ContextWithSessionID(r.Context(), sessionID)))
		})
	}
}

func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	if strings.TrimSpace(sessionID) == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, sessionID)
}
