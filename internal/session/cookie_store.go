package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const cookieName = "jacobs_ladder_session"

// CookieConfig はセッションCookieの発行設定を保持する。
type CookieConfig struct {
	// Secret はレコード署名用のHMAC鍵。
	Secret []byte
	// Secure はSecure属性の付与（本番のhttps配下で有効にする）。
	Secure bool
	// MaxAge はCookieの有効期間。ゼロの場合はDefaultTTL。
	MaxAge time.Duration
}

// CookieStore はセッションレコードをHTTP Only Cookieとして
// クライアント側に預けるStore実装。リクエストごとに生成する。
//
// レコードはHMAC-SHA256で署名され、署名が一致しないCookieは
// 破損として扱われる（クライアントが保持する以上、改竄は前提に置く）。
// SameSite=Strict、HttpOnlyを常に付与し、サーバ以外からは読めない。
type CookieStore struct {
	w   http.ResponseWriter
	r   *http.Request
	cfg CookieConfig

	// 同一リクエスト内でSave後のLoadが古いCookieを読まないよう、
	// 書き込んだ値を保持する
	pending *string
}

// NewCookieStore はリクエストスコープのCookieStoreを生成する。
func NewCookieStore(w http.ResponseWriter, r *http.Request, cfg CookieConfig) *CookieStore {
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultTTL
	}
	return &CookieStore{w: w, r: r, cfg: cfg}
}

// Load はCookieからレコードを取り出し、署名を検証して返す。
func (s *CookieStore) Load(ctx context.Context) ([]byte, error) {
	var value string
	if s.pending != nil {
		if *s.pending == "" {
			return nil, ErrNotFound
		}
		value = *s.pending
	} else {
		cookie, err := s.r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			return nil, ErrNotFound
		}
		value = cookie.Value
	}

	payload, sig, ok := strings.Cut(value, ".")
	if !ok {
		return nil, fmt.Errorf("%w: malformed cookie value", ErrCorrupt)
	}

	data, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	want, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if !hmac.Equal(want, s.sign(data)) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrCorrupt)
	}

	return data, nil
}

// Save はレコードを署名付きCookieとして書き込む。
func (s *CookieStore) Save(ctx context.Context, data []byte) error {
	payload := base64.RawURLEncoding.EncodeToString(data)
	sig := base64.RawURLEncoding.EncodeToString(s.sign(data))
	value := payload + "." + sig

	http.SetCookie(s.w, &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	s.pending = &value

	return nil
}

// Delete はCookieをクリアする。
func (s *CookieStore) Delete(ctx context.Context) error {
	http.SetCookie(s.w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	empty := ""
	s.pending = &empty

	return nil
}

func (s *CookieStore) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, s.cfg.Secret)
	mac.Write(data)
	return mac.Sum(nil)
}
