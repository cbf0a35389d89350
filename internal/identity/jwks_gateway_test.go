package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testKeyID = "test-key-1"

// newTestKey はテスト用のRSA鍵ペアを生成する。
func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	return key
}

// newJWKSServer は公開鍵をJWKS形式で配信するテストサーバーを起動する。
func newJWKSServer(t *testing.T, pub *rsa.PublicKey) *httptest.Server {
	t.Helper()

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": testKeyID,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// signToken は指定クレームでRS256署名したJWTを作る。
func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID

	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// newTestGateway はJWKSサーバーに接続したゲートウェイを構築する。
func newTestGateway(t *testing.T, jwksURL, adminURL, adminToken string) *JWKSGateway {
	t.Helper()

	gw, err := NewJWKSGateway(context.Background(), JWKSConfig{
		JWKSURL:    jwksURL,
		Issuer:     "https://issuer.example.com",
		AdminURL:   adminURL,
		AdminToken: adminToken,
	}, nil)
	if err != nil {
		t.Fatalf("failed to build gateway: %v", err)
	}
	t.Cleanup(gw.Close)
	return gw
}

func TestVerifyToken_ValidToken_ReturnsSubject(t *testing.T) {
	key := newTestKey(t)
	srv := newJWKSServer(t, &key.PublicKey)
	gw := newTestGateway(t, srv.URL, "", "")

	token := signToken(t, key, jwt.MapClaims{
		"iss": "https://issuer.example.com",
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	uid, err := gw.VerifyToken(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if uid != "user-1" {
		t.Errorf("uid = %q, want %q", uid, "user-1")
	}
}

func TestVerifyToken_ExpiredToken_ReturnsErrInvalidToken(t *testing.T) {
	key := newTestKey(t)
	srv := newJWKSServer(t, &key.PublicKey)
	gw := newTestGateway(t, srv.URL, "", "")

	token := signToken(t, key, jwt.MapClaims{
		"iss": "https://issuer.example.com",
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := gw.VerifyToken(context.Background(), token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyToken_WrongIssuer_ReturnsErrInvalidToken(t *testing.T) {
	key := newTestKey(t)
	srv := newJWKSServer(t, &key.PublicKey)
	gw := newTestGateway(t, srv.URL, "", "")

	token := signToken(t, key, jwt.MapClaims{
		"iss": "https://attacker.example.com",
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := gw.VerifyToken(context.Background(), token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyToken_WrongSigningKey_ReturnsErrInvalidToken(t *testing.T) {
	key := newTestKey(t)
	srv := newJWKSServer(t, &key.PublicKey)
	gw := newTestGateway(t, srv.URL, "", "")

	// JWKSに存在しない別の鍵で署名されたトークン
	otherKey := newTestKey(t)
	token := signToken(t, otherKey, jwt.MapClaims{
		"iss": "https://issuer.example.com",
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := gw.VerifyToken(context.Background(), token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyToken_MissingSub_ReturnsErrInvalidToken(t *testing.T) {
	key := newTestKey(t)
	srv := newJWKSServer(t, &key.PublicKey)
	gw := newTestGateway(t, srv.URL, "", "")

	token := signToken(t, key, jwt.MapClaims{
		"iss": "https://issuer.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := gw.VerifyToken(context.Background(), token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestDisableUser_SendsPatchWithCredentials(t *testing.T) {
	key := newTestKey(t)
	jwksSrv := newJWKSServer(t, &key.PublicKey)

	var (
		gotMethod string
		gotPath   string
		gotAuth   string
		gotBody   string
	)
	adminSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer adminSrv.Close()

	gw := newTestGateway(t, jwksSrv.URL, adminSrv.URL, "admin-secret")

	if err := gw.DisableUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("DisableUser returned error: %v", err)
	}

	if gotMethod != http.MethodPatch {
		t.Errorf("method = %q, want PATCH", gotMethod)
	}
	if gotPath != "/users/user-1" {
		t.Errorf("path = %q, want /users/user-1", gotPath)
	}
	if gotAuth != "Bearer admin-secret" {
		t.Errorf("authorization = %q, want bearer credential", gotAuth)
	}
	if !strings.Contains(gotBody, `"disabled":true`) {
		t.Errorf("body = %q, want disabled flag", gotBody)
	}
}

func TestDisableUser_ProviderRejects_ReturnsError(t *testing.T) {
	key := newTestKey(t)
	jwksSrv := newJWKSServer(t, &key.PublicKey)

	adminSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer adminSrv.Close()

	gw := newTestGateway(t, jwksSrv.URL, adminSrv.URL, "admin-secret")

	err := gw.DisableUser(context.Background(), "user-1")
	if err == nil {
		t.Fatal("DisableUser returned nil, want error")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("err = %v, want status in message", err)
	}
}
